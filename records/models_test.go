package records

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRecipients(t *testing.T) {
	rec := &PaymentIntentRecord{Recipients: JoinRecipients([]string{"0xa", "0xb"})}
	require.EqualValues(t, "0xa,0xb", rec.Recipients)
	require.EqualValues(t, []string{"0xa", "0xb"}, rec.RecipientList())

	require.True(t, rec.CoversRecipients([]string{"0xa", "0xb"}))
	require.True(t, rec.CoversRecipients([]string{"0xa", "0xb", "0xc"}))
	require.False(t, rec.CoversRecipients([]string{"0xa"}))

	empty := &PaymentIntentRecord{}
	require.Nil(t, empty.RecipientList())
	require.True(t, empty.CoversRecipients(nil))
}

func TestChargeID(t *testing.T) {
	c := &Charge{}
	require.NoError(t, c.BeforeCreate(nil))
	_, err := uuid.Parse(c.ChargeID)
	require.NoError(t, err)

	fixed := &Charge{ChargeID: "keep-me"}
	require.NoError(t, fixed.BeforeCreate(nil))
	require.EqualValues(t, "keep-me", fixed.ChargeID)
}
