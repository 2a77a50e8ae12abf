package envtest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconai/stategate/internal/envelope"
	"github.com/reconai/stategate/internal/envtest"
)

func TestValid_AllDomainsPassValidation(t *testing.T) {
	t.Parallel()

	for _, domain := range envelope.Domains() {
		t.Run(domain, func(t *testing.T) {
			t.Parallel()

			schema, err := envelope.SchemaFor(domain)
			require.NoError(t, err)

			env, err := envelope.Validate(envtest.Valid(domain), schema)
			require.NoError(t, err)
			assert.Equal(t, envelope.LifecycleSuccess, env.Lifecycle)
			assert.True(t, env.HasPayload())
			assert.Equal(t, envtest.GeneratedAt, env.GeneratedAt)
		})
	}
}

func TestValid_DerivesReasonCodeForOffSuccessLifecycles(t *testing.T) {
	t.Parallel()

	// Asking for "failed" without a reason code must not produce an
	// accidentally-invalid fixture.
	raw := envtest.Valid(envelope.DomainCFO, envtest.WithLifecycle(envelope.LifecycleFailed))

	env, err := envelope.Validate(raw, envelope.CFOSchema)
	require.NoError(t, err)
	assert.Equal(t, envelope.LifecycleFailed, env.Lifecycle)
	assert.Equal(t, envelope.ReasonComputationError, env.ReasonCode)
	assert.False(t, env.HasPayload(), "failed envelopes carry no payload")
}

func TestValid_StaleKeepsPayload(t *testing.T) {
	t.Parallel()

	raw := envtest.Valid(envelope.DomainIntelligence,
		envtest.WithLifecycle(envelope.LifecycleStale),
		envtest.WithReasonCode(envelope.ReasonDataStale),
	)

	env, err := envelope.Validate(raw, envelope.IntelligenceSchema)
	require.NoError(t, err)
	assert.True(t, env.HasPayload())
}

func TestValid_OverridesApplyInOrder(t *testing.T) {
	t.Parallel()

	raw := envtest.Valid(envelope.DomainCFO,
		envtest.WithPayloadField("snapshot", "runway_days", float64(30)),
		envtest.WithPayloadField("snapshot", "runway_days", float64(60)),
	)

	env, err := envelope.Validate(raw, envelope.CFOSchema)
	require.NoError(t, err)
	snap, err := envelope.DecodeSnapshot(env)
	require.NoError(t, err)
	assert.Equal(t, float64(60), snap.RunwayDays)
}

func TestValid_PanicsOnContractBreakingOverride(t *testing.T) {
	t.Parallel()

	// Valid refuses to hand out a broken fixture; Invalid is the only
	// path to one.
	assert.Panics(t, func() {
		envtest.Valid(envelope.DomainCFO, envtest.WithVersion(envelope.DomainCFO, "999"))
	})
}

func TestInvalid_AllMutationsFailValidation(t *testing.T) {
	t.Parallel()

	mutations := []envtest.Mutation{
		envtest.MutUnknownVersion,
		envtest.MutMissingVersion,
		envtest.MutBadLifecycle,
		envtest.MutMissingReason,
		envtest.MutUnknownReason,
		envtest.MutNullPayload,
		envtest.MutPayloadNotObject,
		envtest.MutMissingGeneratedAt,
		envtest.MutTruncatedElement,
		envtest.MutPayloadOnFailed,
	}

	for _, domain := range envelope.Domains() {
		for _, mut := range mutations {
			t.Run(domain+"/"+string(mut), func(t *testing.T) {
				t.Parallel()

				schema, err := envelope.SchemaFor(domain)
				require.NoError(t, err)

				_, err = envelope.Validate(envtest.Invalid(domain, mut), schema)
				assert.Error(t, err)
			})
		}
	}
}

func TestInvalid_ConfidenceMutationTargetsIntelligence(t *testing.T) {
	t.Parallel()

	raw := envtest.Invalid(envelope.DomainIntelligence, envtest.MutConfidenceOutOfRange)

	_, err := envelope.Validate(raw, envelope.IntelligenceSchema)
	require.Error(t, err)
	v, ok := err.(*envelope.Violation)
	require.True(t, ok)
	assert.Equal(t, "items[0].confidence", v.Field)
}

func TestInvalid_UnknownMutationPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		envtest.Invalid(envelope.DomainCore, envtest.Mutation("reverse_polarity"))
	})
}
