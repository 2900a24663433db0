package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlex_AcceptsStringsAndNumbers(t *testing.T) {
	var o Order
	require.NoError(t, json.Unmarshal([]byte(`{"id":17,"orderNumber":"ORD-1","totalAmount":"129.50","freight":3.25}`), &o))
	require.Equal(t, Flex("17"), o.ID)
	require.Equal(t, "129.50", o.TotalAmount.String())
	require.Equal(t, "3.25", o.Freight.String())
}

func TestFlex_NullIsEmpty(t *testing.T) {
	var inv Invoice
	require.NoError(t, json.Unmarshal([]byte(`{"id":null,"amount":null}`), &inv))
	require.Empty(t, inv.ID)
	require.Empty(t, inv.Amount)
}

func TestFlex_RejectsObjects(t *testing.T) {
	var o Order
	require.Error(t, json.Unmarshal([]byte(`{"id":{"nested":true}}`), &o))
}

func TestFlex_OmittedWhenEmpty(t *testing.T) {
	b, err := json.Marshal(Order{OrderNumber: "ORD-9"})
	require.NoError(t, err)
	require.JSONEq(t, `{"orderNumber":"ORD-9"}`, string(b))
}
