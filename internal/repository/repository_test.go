package repository

import (
	"context"
	"errors"
	"strings"
	"testing"

	"restaurant_orders/internal/model"
	"restaurant_orders/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := store.Open("sqlite", dsn)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedDeliveryOrder(t *testing.T, db *gorm.DB, repo *OrderRepository) uint {
	t.Helper()
	pc := model.Postcode{Code: "1010"}
	require.NoError(t, db.Create(&pc).Error)

	var orderID uint
	err := db.Transaction(func(tx *gorm.DB) error {
		pcID, err := repo.FindPostcodeID(tx, " 1010 ")
		if err != nil {
			return err
		}
		c := model.CustomerOrderInfo{Name: "Anna", Email: "anna@example.com"}
		if err := repo.CreateCustomer(tx, &c); err != nil {
			return err
		}
		a := model.DeliveryAddress{PostcodeID: pcID, Street: "Ring", House: "3"}
		if err := repo.CreateAddress(tx, &a); err != nil {
			return err
		}
		o := model.Order{
			OrderNumber:         "ORD-20261018-00000001",
			Status:              model.OrderStatusPending,
			Total:               decimal.RequireFromString("12.50"),
			PaymentMethod:       "card",
			OrderMethod:         model.OrderMethodDelivery,
			CustomerOrderInfoID: &c.ID,
			DeliveryAddressID:   &a.ID,
		}
		if err := repo.CreateOrder(tx, &o); err != nil {
			return err
		}
		orderID = o.ID
		return repo.CreateDetails(tx, []model.OrderDetail{
			{OrderID: o.ID, Snapshot: datatypes.JSON(`{"id":1}`)},
			{OrderID: o.ID, Snapshot: datatypes.JSON(`{"id":2}`)},
		})
	})
	require.NoError(t, err)
	return orderID
}

func TestLoadGraph(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrderRepository()
	id := seedDeliveryOrder(t, db, repo)

	g, err := repo.LoadGraph(db, id)
	require.NoError(t, err)
	assert.Equal(t, "ORD-20261018-00000001", g.Order.OrderNumber)
	require.Len(t, g.Details, 2)
	assert.JSONEq(t, `{"id":1}`, string(g.Details[0].Snapshot))
	require.NotNil(t, g.Customer)
	assert.Equal(t, "Anna", g.Customer.Name)
	require.NotNil(t, g.Address)
	assert.Equal(t, "Ring", g.Address.Street)
	require.NotNil(t, g.Postcode)
	assert.Equal(t, "1010", g.Postcode.Code)

	_, err = repo.LoadGraph(db, id+100)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestFindPostcodeIDUnknown(t *testing.T) {
	db := newTestDB(t)
	_, err := NewOrderRepository().FindPostcodeID(db, "9999")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCreateAddressRequiresPostcode(t *testing.T) {
	db := newTestDB(t)
	err := NewOrderRepository().CreateAddress(db, &model.DeliveryAddress{Street: "Ring", House: "3"})
	assert.Error(t, err)

	var n int64
	db.Model(&model.DeliveryAddress{}).Count(&n)
	assert.Zero(t, n)
}

func TestUpdateStatusGuard(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrderRepository()
	id := seedDeliveryOrder(t, db, repo)

	n, err := repo.UpdateStatusGuard(db, id, model.OrderStatusPending, model.OrderStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// 已是终态，守卫条件不再满足
	n, err = repo.UpdateStatusGuard(db, id, model.OrderStatusPending, model.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	o, err := repo.LockOrder(db, id)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCompleted, o.Status)
}

func TestSelectionGroups(t *testing.T) {
	db := newTestDB(t)
	groups := []model.SelectionGroup{
		{MenuItemID: 1, Name: "Extras", SortOrder: 2, Options: []model.SelectionOption{{Name: "Olives"}}},
		{MenuItemID: 1, Name: "Size", Required: true, SortOrder: 1, Options: []model.SelectionOption{
			{Name: "Small"}, {Name: "Large", Price: decimal.RequireFromString("2.5")},
		}},
		{MenuItemID: 2, Name: "Sauce", Required: true},
	}
	require.NoError(t, db.Create(&groups).Error)

	got, err := NewCatalogRepository(db).SelectionGroups(context.Background(), []uint{1, 3})
	require.NoError(t, err)
	require.Len(t, got[1], 2)
	assert.Equal(t, "Size", got[1][0].Name)
	assert.Len(t, got[1][0].Options, 2)
	assert.Equal(t, "Extras", got[1][1].Name)
	assert.NotContains(t, got, uint(2))
	assert.NotContains(t, got, uint(3))

	empty, err := NewCatalogRepository(db).SelectionGroups(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
