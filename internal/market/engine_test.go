package market

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/tidemarket/escrow/internal/event"
	"github.com/tidemarket/escrow/internal/model"
	"github.com/tidemarket/escrow/internal/token"
	"github.com/tidemarket/escrow/internal/vault"
)

const (
	testOperator = model.Address("operator")
	testAdmin    = model.Address("admin")
	alice        = model.Address("alice")
	bob          = model.Address("bob")
	carol        = model.Address("carol")
	galleryID    = model.Address("gallery")
	pressID      = model.Address("press")
)

// engineRig wires an Engine to a live vault and two live collections: a
// deed collection under galleryID and an edition collection under pressID.
// Tests that need a failing or observing bank swap rig.engine.bank after
// construction.
type engineRig struct {
	engine  *Engine
	bank    *vault.Vault
	gallery *token.DeedCollection
	press   *token.EditionCollection
}

func newEngineRig(t *testing.T) *engineRig {
	t.Helper()

	v := vault.New()
	cfg := DefaultConfig()
	cfg.Operator = testOperator

	e, err := New(cfg, v, nil, slog.Default())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	g := token.NewDeedCollection(galleryID, testAdmin)
	p := token.NewEditionCollection(pressID, testAdmin)
	if err := e.RegisterCollection(g); err != nil {
		t.Fatalf("RegisterCollection(gallery) error = %v", err)
	}
	if err := e.RegisterCollection(p); err != nil {
		t.Fatalf("RegisterCollection(press) error = %v", err)
	}
	g.RegisterReceiver(e.EscrowAccount(), e)
	p.RegisterReceiver(e.EscrowAccount(), e)

	return &engineRig{engine: e, bank: v, gallery: g, press: p}
}

// mintDeed mints tokenID to owner and authorizes escrow to move it.
func (r *engineRig) mintDeed(t *testing.T, owner model.Address, tokenID string) model.AssetRef {
	t.Helper()
	if err := r.gallery.Mint(context.Background(), testAdmin, owner, tokenID, 1); err != nil {
		t.Fatalf("Mint(%q) error = %v", tokenID, err)
	}
	if err := r.gallery.SetApprovalForAll(owner, r.engine.EscrowAccount(), true); err != nil {
		t.Fatalf("SetApprovalForAll() error = %v", err)
	}
	return model.AssetRef{Collection: galleryID, TokenID: tokenID}
}

// mintEdition mints quantity units of tokenID to owner and authorizes
// escrow to move them.
func (r *engineRig) mintEdition(t *testing.T, owner model.Address, tokenID string, quantity uint64) model.AssetRef {
	t.Helper()
	if err := r.press.Mint(context.Background(), testAdmin, owner, tokenID, quantity); err != nil {
		t.Fatalf("Mint(%q) error = %v", tokenID, err)
	}
	if err := r.press.SetApprovalForAll(owner, r.engine.EscrowAccount(), true); err != nil {
		t.Fatalf("SetApprovalForAll() error = %v", err)
	}
	return model.AssetRef{Collection: pressID, TokenID: tokenID}
}

// fund credits account's vault balance.
func (r *engineRig) fund(t *testing.T, account model.Address, amount uint64) {
	t.Helper()
	if err := r.bank.Deposit(account, amount); err != nil {
		t.Fatalf("Deposit(%s, %d) error = %v", account, amount, err)
	}
}

// list creates a listing that must succeed.
func (r *engineRig) list(t *testing.T, seller model.Address, ref model.AssetRef, quantity, unitPrice uint64) {
	t.Helper()
	if err := r.engine.List(context.Background(), seller, ref, quantity, unitPrice); err != nil {
		t.Fatalf("List(%s) error = %v", ref, err)
	}
}

// nextEvent pops one event off the engine stream without blocking.
func (r *engineRig) nextEvent(t *testing.T) event.Event {
	t.Helper()
	select {
	case ev := <-r.engine.Events():
		return ev
	default:
		t.Fatal("no event in channel")
		return event.Event{}
	}
}

// drainEvents empties the engine event stream.
func (r *engineRig) drainEvents() {
	for {
		select {
		case <-r.engine.Events():
		default:
			return
		}
	}
}

// failingBank delegates transfers to inner until the failOn-th call, which
// fails.
type failingBank struct {
	inner  ValueTransferrer
	failOn int
	calls  int
}

func (b *failingBank) Transfer(ctx context.Context, from, to model.Address, amount uint64) error {
	b.calls++
	if b.calls == b.failOn {
		return errors.New("bank unavailable")
	}
	return b.inner.Transfer(ctx, from, to, amount)
}

// probingBank records the proceeds balance visible for account at the
// moment of every transfer.
type probingBank struct {
	inner    ValueTransferrer
	engine   *Engine
	account  model.Address
	observed []uint64
}

func (b *probingBank) Transfer(ctx context.Context, from, to model.Address, amount uint64) error {
	b.observed = append(b.observed, b.engine.Proceeds(b.account))
	return b.inner.Transfer(ctx, from, to, amount)
}

// reenteringBank calls back into the engine from inside a transfer and
// records what it got.
type reenteringBank struct {
	inner   ValueTransferrer
	reenter func(ctx context.Context) error
	errs    []error
}

func (b *reenteringBank) Transfer(ctx context.Context, from, to model.Address, amount uint64) error {
	b.errs = append(b.errs, b.reenter(ctx))
	return b.inner.Transfer(ctx, from, to, amount)
}

// faultyCustody delegates to the wrapped collection but fails any unit
// transfer out of failFrom.
type faultyCustody struct {
	Custody
	failFrom model.Address
}

func (c *faultyCustody) TransferUnits(ctx context.Context, operator, from, to model.Address, tokenID string, quantity uint64) error {
	if from == c.failFrom {
		return errors.New("custody stalled")
	}
	return c.Custody.TransferUnits(ctx, operator, from, to, tokenID, quantity)
}

// reenteringCustody calls back into the engine from inside transfers out
// of releaseFrom and records what it got.
type reenteringCustody struct {
	Custody
	releaseFrom model.Address
	reenter     func(ctx context.Context) error
	errs        []error
}

func (c *reenteringCustody) TransferUnits(ctx context.Context, operator, from, to model.Address, tokenID string, quantity uint64) error {
	if from == c.releaseFrom {
		c.errs = append(c.errs, c.reenter(ctx))
	}
	return c.Custody.TransferUnits(ctx, operator, from, to, tokenID, quantity)
}

func TestNew_Validation(t *testing.T) {
	v := vault.New()

	tests := []struct {
		name    string
		cfg     Config
		bank    ValueTransferrer
		wantErr error
	}{
		{"nil bank", Config{Operator: testOperator}, nil, nil},
		{"missing operator", Config{}, v, nil},
		{"fee above ceiling", Config{Operator: testOperator, FeeBps: MaxFeeBps + 1}, v, ErrInvalidFee},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, tt.bank, nil, nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	e, err := New(Config{Operator: testOperator}, vault.New(), nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if e.cfg.FeeRecipient != testOperator {
		t.Errorf("FeeRecipient = %q, want %q", e.cfg.FeeRecipient, testOperator)
	}
	if e.cfg.EscrowAccount != DefaultEscrowAccount {
		t.Errorf("EscrowAccount = %q, want %q", e.cfg.EscrowAccount, DefaultEscrowAccount)
	}
	if e.cfg.EventBuffer != DefaultEventBuffer {
		t.Errorf("EventBuffer = %d, want %d", e.cfg.EventBuffer, DefaultEventBuffer)
	}

	// FeeBps is taken as configured; zero means no fee, not the default.
	if got := e.FeeBps(); got != 0 {
		t.Errorf("FeeBps() = %d, want 0", got)
	}
}

func TestEngine_RegisterCollection_Rejections(t *testing.T) {
	rig := newEngineRig(t)

	dup := token.NewDeedCollection(galleryID, testAdmin)
	if err := rig.engine.RegisterCollection(dup); err == nil {
		t.Error("expected duplicate registration to fail")
	}
	if err := rig.engine.RegisterCollection(nil); err == nil {
		t.Error("expected nil collection to fail")
	}
}

func TestEngine_SetFee(t *testing.T) {
	rig := newEngineRig(t)
	ctx := context.Background()

	if err := rig.engine.SetFee(ctx, testOperator, 500); err != nil {
		t.Fatalf("SetFee() error = %v", err)
	}
	if got := rig.engine.FeeBps(); got != 500 {
		t.Errorf("FeeBps() = %d, want 500", got)
	}

	if err := rig.engine.SetFee(ctx, alice, 100); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("SetFee() by non-operator error = %v, want %v", err, ErrNotAuthorized)
	}
	if err := rig.engine.SetFee(ctx, testOperator, MaxFeeBps+1); !errors.Is(err, ErrInvalidFee) {
		t.Errorf("SetFee() above ceiling error = %v, want %v", err, ErrInvalidFee)
	}

	// Rejected updates leave the rate untouched.
	if got := rig.engine.FeeBps(); got != 500 {
		t.Errorf("FeeBps() = %d, want 500", got)
	}
}

func TestEngine_ReentrantCallsRejected(t *testing.T) {
	rig := newEngineRig(t)
	ref := rig.mintDeed(t, alice, "art-1")
	marked := outboundContext(context.Background())

	if err := rig.engine.List(marked, alice, ref, 1, 100); !errors.Is(err, ErrReentrantCall) {
		t.Errorf("List() error = %v, want %v", err, ErrReentrantCall)
	}
	if err := rig.engine.Cancel(marked, alice, ref); !errors.Is(err, ErrReentrantCall) {
		t.Errorf("Cancel() error = %v, want %v", err, ErrReentrantCall)
	}
	if err := rig.engine.Reprice(marked, alice, ref, 200); !errors.Is(err, ErrReentrantCall) {
		t.Errorf("Reprice() error = %v, want %v", err, ErrReentrantCall)
	}
	if _, err := rig.engine.Settle(marked, bob, ref, 1, 100); !errors.Is(err, ErrReentrantCall) {
		t.Errorf("Settle() error = %v, want %v", err, ErrReentrantCall)
	}
	if _, err := rig.engine.Withdraw(marked, alice); !errors.Is(err, ErrReentrantCall) {
		t.Errorf("Withdraw() error = %v, want %v", err, ErrReentrantCall)
	}
	if err := rig.engine.SetFee(marked, testOperator, 100); !errors.Is(err, ErrReentrantCall) {
		t.Errorf("SetFee() error = %v, want %v", err, ErrReentrantCall)
	}
}

func TestEngine_Events_ListingCreated(t *testing.T) {
	rig := newEngineRig(t)
	ref := rig.mintDeed(t, alice, "art-1")
	rig.list(t, alice, ref, 1, 2500)

	ev := rig.nextEvent(t)
	if ev.Kind != event.KindListingCreated {
		t.Fatalf("Kind = %q, want %q", ev.Kind, event.KindListingCreated)
	}
	if ev.ID == "" {
		t.Error("event ID is empty")
	}
	if ev.At == 0 {
		t.Error("event At is zero")
	}
	if ev.Collection != galleryID || ev.TokenID != "art-1" {
		t.Errorf("asset = %s/%s, want %s/art-1", ev.Collection, ev.TokenID, galleryID)
	}
	if ev.Seller != alice || ev.Quantity != 1 || ev.UnitPrice != 2500 {
		t.Errorf("payload = (%s, %d, %d), want (%s, 1, 2500)", ev.Seller, ev.Quantity, ev.UnitPrice, alice)
	}
}

func TestEngine_Events_FullChannelDropsOldest(t *testing.T) {
	rig := newEngineRig(t)
	rig.engine.events = make(chan event.Event, 1)

	ref1 := rig.mintDeed(t, alice, "art-1")
	ref2 := rig.mintDeed(t, alice, "art-2")
	rig.list(t, alice, ref1, 1, 100)
	rig.list(t, alice, ref2, 1, 200)

	ev := rig.nextEvent(t)
	if ev.TokenID != "art-2" {
		t.Errorf("TokenID = %q, want %q", ev.TokenID, "art-2")
	}
	select {
	case extra := <-rig.engine.Events():
		t.Errorf("unexpected second event %q", extra.Kind)
	default:
	}
}

func TestEngine_Close(t *testing.T) {
	rig := newEngineRig(t)
	ref := rig.mintDeed(t, alice, "art-1")

	rig.engine.Close()
	rig.engine.Close()

	if _, ok := <-rig.engine.Events(); ok {
		t.Error("Events() channel still open after Close")
	}

	// Operations keep working, they just stop emitting.
	rig.list(t, alice, ref, 1, 100)
	if _, ok := rig.engine.GetListing(ref); !ok {
		t.Error("listing not recorded after Close")
	}
}

func TestEngine_GetListing_ReturnsCopy(t *testing.T) {
	rig := newEngineRig(t)
	ref := rig.mintDeed(t, alice, "art-1")
	rig.list(t, alice, ref, 1, 100)

	l, ok := rig.engine.GetListing(ref)
	if !ok {
		t.Fatal("listing not found")
	}
	l.UnitPrice = 999

	got, _ := rig.engine.GetListing(ref)
	if got.UnitPrice != 100 {
		t.Errorf("UnitPrice = %d, want 100", got.UnitPrice)
	}
}

func TestEngine_OnUnitsReceived_Accepts(t *testing.T) {
	rig := newEngineRig(t)
	if err := rig.engine.OnUnitsReceived(context.Background(), alice, alice, "art-1", 1); err != nil {
		t.Errorf("OnUnitsReceived() error = %v", err)
	}
}

func TestEngine_Concurrent_SettlesAndReads(t *testing.T) {
	rig := newEngineRig(t)
	ref := rig.mintEdition(t, alice, "zine-1", 64)
	rig.list(t, alice, ref, 64, 10)

	rig.fund(t, bob, 320)
	rig.fund(t, carol, 320)

	var wg sync.WaitGroup
	for _, buyer := range []model.Address{bob, carol} {
		wg.Add(1)
		go func(buyer model.Address) {
			defer wg.Done()
			for i := 0; i < 32; i++ {
				if _, err := rig.engine.Settle(context.Background(), buyer, ref, 1, 10); err != nil {
					t.Errorf("Settle(%s) error = %v", buyer, err)
					return
				}
			}
		}(buyer)
	}

	// Readers run against in-flight settlements.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			rig.engine.Totals()
			rig.engine.Proceeds(alice)
			rig.engine.GetListing(ref)
		}
	}()
	wg.Wait()

	totals := rig.engine.Totals()
	if totals.Sales != 64 {
		t.Errorf("Sales = %d, want 64", totals.Sales)
	}
	if totals.Volume != 640 {
		t.Errorf("Volume = %d, want 640", totals.Volume)
	}
	if totals.ActiveListings != 0 {
		t.Errorf("ActiveListings = %d, want 0", totals.ActiveListings)
	}
	if got := rig.engine.Proceeds(alice) + rig.engine.Proceeds(testOperator); got != 640 {
		t.Errorf("total proceeds = %d, want 640", got)
	}
	if got := rig.press.BalanceOf(bob, "zine-1") + rig.press.BalanceOf(carol, "zine-1"); got != 64 {
		t.Errorf("buyer units = %d, want 64", got)
	}
}
