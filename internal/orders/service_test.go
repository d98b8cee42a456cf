package orders

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hfarhat1982/gestion-tournee/internal/ledger"
	"github.com/hfarhat1982/gestion-tournee/internal/logging"
	"github.com/hfarhat1982/gestion-tournee/internal/storage"
	"github.com/hfarhat1982/gestion-tournee/pkg/types"
)

// countingLedger records calls before delegating to the real ledger
type countingLedger struct {
	inner    *ledger.Ledger
	reserves atomic.Int32
	releases atomic.Int32
}

func (c *countingLedger) Reserve(ctx context.Context, store ledger.SlotStore, slotID string) (*types.TimeSlot, error) {
	c.reserves.Add(1)
	return c.inner.Reserve(ctx, store, slotID)
}

func (c *countingLedger) Release(ctx context.Context, store ledger.SlotStore, slotID string) (*types.TimeSlot, error) {
	c.releases.Add(1)
	return c.inner.Release(ctx, store, slotID)
}

type fixture struct {
	db       *storage.SQLiteStorage
	svc      *Service
	ledger   *countingLedger
	logs     *bytes.Buffer
	europe   *types.PaletteType
	half     *types.PaletteType
	slot     *types.TimeSlot
	tinySlot *types.TimeSlot
}

func setupService(t *testing.T, policy SlotFailurePolicy) *fixture {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	f := &fixture{
		db:       db,
		ledger:   &countingLedger{inner: ledger.New()},
		logs:     &bytes.Buffer{},
		europe:   &types.PaletteType{Name: "Europe", Price: decimal.NewNullDecimal(decimal.NewFromInt(15))},
		half:     &types.PaletteType{Name: "Demi"},
		slot:     &types.TimeSlot{Date: "2030-05-02", StartTime: "08:00", EndTime: "09:00", Capacity: 5},
		tinySlot: &types.TimeSlot{Date: "2030-05-02", StartTime: "09:00", EndTime: "10:00", Capacity: 1},
	}
	require.NoError(t, db.UpsertPaletteType(ctx, f.europe))
	require.NoError(t, db.UpsertPaletteType(ctx, f.half))
	_, err = db.InsertTimeSlotIfAbsent(ctx, f.slot)
	require.NoError(t, err)
	_, err = db.InsertTimeSlotIfAbsent(ctx, f.tinySlot)
	require.NoError(t, err)

	f.svc = NewService(db, Config{
		Policy: policy,
		Ledger: f.ledger,
		Logger: logging.New(logging.Config{Level: logging.LevelDebug, Format: "json", Output: f.logs}),
	})
	return f
}

func (f *fixture) request(phone string) SubmitRequest {
	return SubmitRequest{
		CustomerName:    "Martin",
		CustomerPhone:   phone,
		DeliveryAddress: "12 avenue Foch",
		DeliveryDate:    "2030-05-02",
		Items:           []ItemRequest{{PaletteTypeID: f.europe.ID, Quantity: 3}},
	}
}

func (f *fixture) slotUsage(t *testing.T, slot *types.TimeSlot) int {
	stored, err := f.db.GetTimeSlot(context.Background(), slot.ID)
	require.NoError(t, err)
	require.NoError(t, stored.Validate())
	return stored.UsedCapacity
}

func (f *fixture) status(t *testing.T) *storage.Status {
	status, err := f.db.GetStatus(context.Background(), "2030-01-01")
	require.NoError(t, err)
	return status
}

func TestSubmit_ItemsRoundTrip(t *testing.T) {
	f := setupService(t, PolicyProceed)

	req := f.request("0611111111")
	req.Items = []ItemRequest{
		{PaletteTypeID: f.europe.ID, Quantity: 3},
		{PaletteTypeID: f.half.ID, Quantity: 7},
	}
	req.Notes = "Quai 4"

	order, err := f.svc.Submit(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, types.StatusProvisional, order.Status)
	assert.Equal(t, "Quai 4", order.Notes)
	require.Len(t, order.Items, 2)
	assert.Equal(t, f.europe.ID, order.Items[0].PaletteTypeID)
	assert.Equal(t, 3, order.Items[0].Quantity)
	assert.Equal(t, f.half.ID, order.Items[1].PaletteTypeID)
	assert.Equal(t, 7, order.Items[1].Quantity)

	// Legacy single-item fields mirror the first line
	assert.Equal(t, f.europe.ID, order.PaletteTypeID)
	assert.Equal(t, 3, order.Quantity)

	require.NotNil(t, order.Customer)
	assert.Equal(t, "0611111111", order.Customer.Phone)
	require.NotNil(t, order.PaletteType)
	assert.Equal(t, "Europe", order.PaletteType.Name)
	assert.Nil(t, order.TimeSlot)
}

func TestSubmit_SingleItemFallback(t *testing.T) {
	f := setupService(t, PolicyProceed)

	req := f.request("0611111111")
	req.Items = nil
	req.PaletteTypeID = f.half.ID
	req.Quantity = 2

	order, err := f.svc.Submit(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, f.half.ID, order.Items[0].PaletteTypeID)
	assert.Equal(t, 2, order.Quantity)
}

func TestSubmit_CreatedViaAPI(t *testing.T) {
	f := setupService(t, PolicyProceed)
	ctx := context.Background()

	order, err := f.svc.Submit(ctx, f.request("0611111111"))
	require.NoError(t, err)
	assert.True(t, order.CreatedViaAPI)

	internal := false
	req := f.request("0622222222")
	req.CreatedViaAPI = &internal
	order, err = f.svc.Submit(ctx, req)
	require.NoError(t, err)
	assert.False(t, order.CreatedViaAPI)
}

func TestSubmit_Validation(t *testing.T) {
	f := setupService(t, PolicyProceed)

	tests := []struct {
		name   string
		mutate func(r *SubmitRequest)
	}{
		{"missing name", func(r *SubmitRequest) { r.CustomerName = "  " }},
		{"missing phone", func(r *SubmitRequest) { r.CustomerPhone = "" }},
		{"missing address", func(r *SubmitRequest) { r.DeliveryAddress = "" }},
		{"missing date", func(r *SubmitRequest) { r.DeliveryDate = "" }},
		{"no items", func(r *SubmitRequest) { r.Items = nil }},
		{"bad date", func(r *SubmitRequest) { r.DeliveryDate = "02/05/2030" }},
		{"zero quantity", func(r *SubmitRequest) { r.Items[0].Quantity = 0 }},
		{"blank palette type", func(r *SubmitRequest) { r.Items[0].PaletteTypeID = "" }},
		{"unknown palette type", func(r *SubmitRequest) { r.Items[0].PaletteTypeID = "nope" }},
		{"unknown slot", func(r *SubmitRequest) { r.TimeSlotID = "nope" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.request("0611111111")
			tt.mutate(&req)

			_, err := f.svc.Submit(context.Background(), req)
			require.Error(t, err)
			assert.True(t, IsValidation(err), "got %v", err)
		})
	}

	// No side effects
	status := f.status(t)
	assert.Zero(t, status.Customers)
	assert.Zero(t, status.TotalOrders)
	assert.Zero(t, f.ledger.reserves.Load())
}

func TestSubmit_DuplicatePhone(t *testing.T) {
	f := setupService(t, PolicyProceed)
	ctx := context.Background()

	first, err := f.svc.Submit(ctx, f.request("0611111111"))
	require.NoError(t, err)

	req := f.request("0611111111")
	req.CustomerName = "Someone Else"
	second, err := f.svc.Submit(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.CustomerID, second.CustomerID)
	assert.Equal(t, "Martin", second.Customer.Name)
	assert.Equal(t, 1, f.status(t).Customers)
}

func TestSubmit_DuplicatePhoneConcurrent(t *testing.T) {
	f := setupService(t, PolicyProceed)
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := f.svc.Submit(ctx, f.request("0611111111"))
			return err
		})
	}
	require.NoError(t, g.Wait())

	status := f.status(t)
	assert.Equal(t, 1, status.Customers)
	assert.Equal(t, 8, status.TotalOrders)
}

func TestSubmit_ReservesSlot(t *testing.T) {
	f := setupService(t, PolicyProceed)

	req := f.request("0611111111")
	req.TimeSlotID = f.slot.ID
	order, err := f.svc.Submit(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, order.TimeSlot)
	assert.Equal(t, f.slot.ID, order.TimeSlot.ID)
	assert.Equal(t, 1, order.TimeSlot.UsedCapacity)
	assert.Equal(t, 1, f.slotUsage(t, f.slot))
	assert.Equal(t, int32(1), f.ledger.reserves.Load())
}

func TestSubmit_FullSlotProceed(t *testing.T) {
	f := setupService(t, PolicyProceed)
	ctx := context.Background()

	req := f.request("0611111111")
	req.TimeSlotID = f.tinySlot.ID
	_, err := f.svc.Submit(ctx, req)
	require.NoError(t, err)

	req = f.request("0622222222")
	req.TimeSlotID = f.tinySlot.ID
	order, err := f.svc.Submit(ctx, req)
	require.NoError(t, err)

	// The order is kept, holding the slot id, but capacity is not exceeded
	require.NotNil(t, order.TimeSlotID)
	assert.Equal(t, f.tinySlot.ID, *order.TimeSlotID)
	assert.Equal(t, 1, f.slotUsage(t, f.tinySlot))
	assert.Equal(t, 2, f.status(t).TotalOrders)
	assert.Contains(t, f.logs.String(), "slot reservation failed")
	assert.Contains(t, f.logs.String(), order.ID)
}

func TestSubmit_FullSlotReject(t *testing.T) {
	f := setupService(t, PolicyReject)
	ctx := context.Background()

	req := f.request("0611111111")
	req.TimeSlotID = f.tinySlot.ID
	_, err := f.svc.Submit(ctx, req)
	require.NoError(t, err)

	req = f.request("0622222222")
	req.TimeSlotID = f.tinySlot.ID
	_, err = f.svc.Submit(ctx, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrSlotFull)

	// Nothing from the rejected admission persists
	status := f.status(t)
	assert.Equal(t, 1, status.Customers)
	assert.Equal(t, 1, status.TotalOrders)
	assert.Equal(t, 1, f.slotUsage(t, f.tinySlot))
}

func TestSubmit_ConcurrentReservations(t *testing.T) {
	f := setupService(t, PolicyReject)
	ctx := context.Background()

	const attempts = 12
	var admitted atomic.Int32
	var g errgroup.Group
	for i := 0; i < attempts; i++ {
		g.Go(func() error {
			req := f.request("06000000" + string(rune('a'+i)))
			req.TimeSlotID = f.slot.ID
			_, err := f.svc.Submit(ctx, req)
			if err == nil {
				admitted.Add(1)
				return nil
			}
			if !assert.ErrorIs(t, err, ledger.ErrSlotFull) {
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(f.slot.Capacity), admitted.Load())
	assert.Equal(t, f.slot.Capacity, f.slotUsage(t, f.slot))
	assert.Equal(t, f.slot.Capacity, f.status(t).TotalOrders)
}

func TestList(t *testing.T) {
	f := setupService(t, PolicyProceed)
	ctx := context.Background()

	first, err := f.svc.Submit(ctx, f.request("0611111111"))
	require.NoError(t, err)
	second, err := f.svc.Submit(ctx, f.request("0622222222"))
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, first.ID)
	require.NoError(t, err)

	all, err := f.svc.List(ctx, storage.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)

	confirmed, err := f.svc.List(ctx, storage.OrderFilter{Status: types.StatusConfirmed})
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, first.ID, confirmed[0].ID)

	_, err = f.svc.List(ctx, storage.OrderFilter{Status: "shipped"})
	assert.True(t, IsValidation(err))
}

func TestPaletteTypes(t *testing.T) {
	f := setupService(t, PolicyProceed)

	list, err := f.svc.PaletteTypes(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Demi", list[0].Name)
	assert.Equal(t, "Europe", list[1].Name)
}

func TestParseSlotFailurePolicy(t *testing.T) {
	p, err := ParseSlotFailurePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyProceed, p)

	p, err = ParseSlotFailurePolicy(" Reject ")
	require.NoError(t, err)
	assert.Equal(t, PolicyReject, p)

	_, err = ParseSlotFailurePolicy("retry")
	assert.Error(t, err)
}
