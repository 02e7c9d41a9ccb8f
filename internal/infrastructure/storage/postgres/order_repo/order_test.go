package order_repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordertx/internal/core/id"
)

func TestColumns(t *testing.T) {
	assert.Equal(t, []string{"id", "customer_name", "customer_email", "status", "created_at", "updated_at"}, orderCols)
	assert.Equal(t, []string{"id", "order_id", "product_id", "quantity"}, itemCols)
}

func TestItemsQuery_KeepsInsertionOrder(t *testing.T) {
	orderID := id.New()

	sql, args, err := itemsQuery(orderID).ToSql()

	require.NoError(t, err)
	assert.Equal(t,
		"SELECT id, order_id, product_id, quantity FROM order_items WHERE order_id = $1 ORDER BY seq",
		sql)
	assert.Equal(t, []any{orderID.String()}, args)
}
