package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tidemarket/escrow/internal/config"
	"github.com/tidemarket/escrow/internal/event"
	"github.com/tidemarket/escrow/internal/market"
	"github.com/tidemarket/escrow/internal/metrics"
	"github.com/tidemarket/escrow/internal/model"
	"github.com/tidemarket/escrow/internal/token"
	"github.com/tidemarket/escrow/internal/vault"
)

const (
	testOperator = model.Address("0xoperator")
	testAdmin    = model.Address("0xadmin")
	alice        = model.Address("0xalice")
	bob          = model.Address("0xbob")
	galleryID    = model.Address("gallery")
)

type serverRig struct {
	server  *Server
	engine  *market.Engine
	bank    *vault.Vault
	gallery *token.DeedCollection
	feed    *event.Feed
}

func newServerRig(t *testing.T) *serverRig {
	t.Helper()

	bank := vault.New()
	gallery := token.NewDeedCollection(galleryID, testAdmin)

	cfg := market.DefaultConfig()
	cfg.Operator = testOperator
	engine, err := market.New(cfg, bank, nil, slog.Default())
	if err != nil {
		t.Fatalf("market.New failed: %v", err)
	}
	if err := engine.RegisterCollection(gallery); err != nil {
		t.Fatalf("RegisterCollection failed: %v", err)
	}
	gallery.RegisterReceiver(engine.EscrowAccount(), engine)

	feed := event.NewFeed(engine.Events(), slog.Default())
	if err := feed.Start(context.Background()); err != nil {
		t.Fatalf("feed.Start failed: %v", err)
	}
	t.Cleanup(func() {
		engine.Close()
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = feed.Stop(stopCtx)
	})

	appCfg := &config.MarketplaceConfig{}
	appCfg.Server.Addr = "127.0.0.1:0"
	appCfg.Server.PingInterval = 50 * time.Millisecond
	appCfg.Events.SubscriberBuffer = 8
	appCfg.Metrics.Path = "/metrics"

	srv := New(appCfg, engine, feed, bank, map[model.Address]Collection{galleryID: gallery}, metrics.NewRegistry(), slog.Default())

	return &serverRig{
		server:  srv,
		engine:  engine,
		bank:    bank,
		gallery: gallery,
		feed:    feed,
	}
}

// mintDeed mints tokenID to alice and approves the escrow operator.
func (rig *serverRig) mintDeed(t *testing.T, tokenID string) {
	t.Helper()
	ctx := context.Background()
	if err := rig.gallery.Mint(ctx, testAdmin, alice, tokenID, 1); err != nil {
		t.Fatalf("Mint(%s) failed: %v", tokenID, err)
	}
	if err := rig.gallery.SetApprovalForAll(alice, rig.engine.EscrowAccount(), true); err != nil {
		t.Fatalf("SetApprovalForAll failed: %v", err)
	}
}

// do runs one request through the router and returns the recorder.
func (rig *serverRig) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	rig.server.router.ServeHTTP(rec, req)
	return rec
}

func TestServer_ListingLifecycle(t *testing.T) {
	rig := newServerRig(t)
	rig.mintDeed(t, "art-1")

	rec := rig.do(t, http.MethodPost, "/v1/listings", createListingRequest{
		Collection: "gallery",
		TokenID:    "art-1",
		Seller:     string(alice),
		Quantity:   1,
		UnitPrice:  100,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var created listingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.Seller != string(alice) || created.UnitPrice != 100 || created.Quantity != 1 {
		t.Errorf("created = %+v, want alice/100/1", created)
	}

	rec = rig.do(t, http.MethodGet, "/v1/listings/gallery/art-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get = %d, want 200", rec.Code)
	}

	rec = rig.do(t, http.MethodGet, "/v1/listings", nil)
	var all []listingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode listings: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("listings = %d, want 1", len(all))
	}

	rec = rig.do(t, http.MethodPost, "/v1/listings/gallery/art-1/reprice", repriceRequest{
		Seller:    string(alice),
		UnitPrice: 150,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("reprice = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var repriced listingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &repriced); err != nil {
		t.Fatalf("decode reprice response: %v", err)
	}
	if repriced.UnitPrice != 150 {
		t.Errorf("UnitPrice = %d, want 150", repriced.UnitPrice)
	}

	rec = rig.do(t, http.MethodPost, "/v1/listings/gallery/art-1/cancel", cancelRequest{
		Caller: string(alice),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	rec = rig.do(t, http.MethodGet, "/v1/listings/gallery/art-1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after cancel = %d, want 404", rec.Code)
	}
}

func TestServer_CreateListing_Validation(t *testing.T) {
	rig := newServerRig(t)
	rig.mintDeed(t, "art-1")

	tests := []struct {
		name string
		body any
		raw  string
		want int
	}{
		{
			name: "malformed json",
			raw:  "{not json",
			want: http.StatusBadRequest,
		},
		{
			name: "missing seller",
			body: createListingRequest{Collection: "gallery", TokenID: "art-1", Quantity: 1, UnitPrice: 100},
			want: http.StatusBadRequest,
		},
		{
			name: "unknown collection",
			body: createListingRequest{Collection: "vapor", TokenID: "art-1", Seller: string(alice), Quantity: 1, UnitPrice: 100},
			want: http.StatusBadRequest,
		},
		{
			name: "not the owner",
			body: createListingRequest{Collection: "gallery", TokenID: "art-1", Seller: string(bob), Quantity: 1, UnitPrice: 100},
			want: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec *httptest.ResponseRecorder
			if tt.raw != "" {
				req := httptest.NewRequest(http.MethodPost, "/v1/listings", strings.NewReader(tt.raw))
				rec = httptest.NewRecorder()
				rig.server.router.ServeHTTP(rec, req)
			} else {
				rec = rig.do(t, http.MethodPost, "/v1/listings", tt.body)
			}
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	// A live listing makes the duplicate rejection reachable.
	rec := rig.do(t, http.MethodPost, "/v1/listings", createListingRequest{
		Collection: "gallery", TokenID: "art-1", Seller: string(alice), Quantity: 1, UnitPrice: 100,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d, want 201", rec.Code)
	}
	rec = rig.do(t, http.MethodPost, "/v1/listings", createListingRequest{
		Collection: "gallery", TokenID: "art-1", Seller: string(alice), Quantity: 1, UnitPrice: 100,
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate = %d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_BuyAndWithdraw(t *testing.T) {
	rig := newServerRig(t)
	rig.mintDeed(t, "art-2")
	if err := rig.bank.Deposit(bob, 2_000); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	rec := rig.do(t, http.MethodPost, "/v1/listings", createListingRequest{
		Collection: "gallery", TokenID: "art-2", Seller: string(alice), Quantity: 1, UnitPrice: 1_000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d, want 201", rec.Code)
	}

	// Underpayment carries the required total back to the buyer.
	rec = rig.do(t, http.MethodPost, "/v1/listings/gallery/art-2/buy", buyRequest{
		Buyer: string(bob), Quantity: 1, Payment: 999,
	})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("underpaid buy = %d, want 402: %s", rec.Code, rec.Body.String())
	}
	var fail errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &fail); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if fail.Required != 1_000 {
		t.Errorf("Required = %d, want 1000", fail.Required)
	}

	rec = rig.do(t, http.MethodPost, "/v1/listings/gallery/art-2/buy", buyRequest{
		Buyer: string(bob), Quantity: 1, Payment: 1_000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("buy = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var receipt receiptResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &receipt); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if receipt.Total != 1_000 || receipt.Fee != 25 || receipt.SellerProceeds != 975 {
		t.Errorf("receipt = total %d fee %d proceeds %d, want 1000/25/975",
			receipt.Total, receipt.Fee, receipt.SellerProceeds)
	}
	if owner, _ := rig.gallery.OwnerOf("art-2"); owner != bob {
		t.Errorf("owner = %q, want %q", owner, bob)
	}

	rec = rig.do(t, http.MethodGet, "/v1/proceeds/0xalice", nil)
	var proceeds proceedsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &proceeds); err != nil {
		t.Fatalf("decode proceeds: %v", err)
	}
	if proceeds.Amount != 975 {
		t.Errorf("proceeds = %d, want 975", proceeds.Amount)
	}

	rec = rig.do(t, http.MethodPost, "/v1/proceeds/0xalice/withdraw", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("withdraw = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if got := rig.bank.Balance(alice); got != 975 {
		t.Errorf("alice balance = %d, want 975", got)
	}

	rec = rig.do(t, http.MethodPost, "/v1/proceeds/0xalice/withdraw", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second withdraw = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_BuyWithoutFunds(t *testing.T) {
	rig := newServerRig(t)
	rig.mintDeed(t, "art-6")

	rig.do(t, http.MethodPost, "/v1/listings", createListingRequest{
		Collection: "gallery", TokenID: "art-6", Seller: string(alice), Quantity: 1, UnitPrice: 1_000,
	})

	// The buyer never deposited, so the payment capture fails.
	rec := rig.do(t, http.MethodPost, "/v1/listings/gallery/art-6/buy", buyRequest{
		Buyer: string(bob), Quantity: 1, Payment: 1_000,
	})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("unfunded buy = %d, want 402: %s", rec.Code, rec.Body.String())
	}

	rec = rig.do(t, http.MethodGet, "/v1/listings/gallery/art-6", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("listing after failed buy = %d, want 200 (still listed)", rec.Code)
	}
}

func TestServer_SetFee(t *testing.T) {
	rig := newServerRig(t)

	rec := rig.do(t, http.MethodPost, "/v1/fee", setFeeRequest{Caller: string(alice), FeeBps: 500})
	if rec.Code != http.StatusForbidden {
		t.Errorf("stranger set fee = %d, want 403", rec.Code)
	}

	rec = rig.do(t, http.MethodPost, "/v1/fee", setFeeRequest{Caller: string(testOperator), FeeBps: 500})
	if rec.Code != http.StatusOK {
		t.Fatalf("set fee = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	rec = rig.do(t, http.MethodGet, "/v1/totals", nil)
	var totals totalsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &totals); err != nil {
		t.Fatalf("decode totals: %v", err)
	}
	if totals.FeeBps != 500 {
		t.Errorf("FeeBps = %d, want 500", totals.FeeBps)
	}
}

func TestServer_Totals(t *testing.T) {
	rig := newServerRig(t)
	rig.mintDeed(t, "art-3")
	if err := rig.bank.Deposit(bob, 1_000); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	rig.do(t, http.MethodPost, "/v1/listings", createListingRequest{
		Collection: "gallery", TokenID: "art-3", Seller: string(alice), Quantity: 1, UnitPrice: 1_000,
	})
	rig.do(t, http.MethodPost, "/v1/listings/gallery/art-3/buy", buyRequest{
		Buyer: string(bob), Quantity: 1, Payment: 1_000,
	})

	rec := rig.do(t, http.MethodGet, "/v1/totals", nil)
	var totals totalsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &totals); err != nil {
		t.Fatalf("decode totals: %v", err)
	}
	if totals.ActiveListings != 0 || totals.Sales != 1 || totals.Volume != 1_000 {
		t.Errorf("totals = %+v, want 0 active, 1 sale, 1000 volume", totals)
	}
	if totals.ProceedsOutstanding != 1_000 {
		t.Errorf("ProceedsOutstanding = %d, want 1000", totals.ProceedsOutstanding)
	}
}

func TestServer_AdminMintAndSell(t *testing.T) {
	rig := newServerRig(t)

	// Provision state through the API alone: mint, approve, deposit.
	rec := rig.do(t, http.MethodPost, "/v1/collections/gallery/mint", mintRequest{
		Caller: string(testAdmin), To: string(alice), TokenID: "art-9", Quantity: 1,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("mint = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	rec = rig.do(t, http.MethodPost, "/v1/collections/gallery/approve", approveRequest{
		Owner: string(alice),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("approve = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	rec = rig.do(t, http.MethodPost, "/v1/accounts/0xbob/deposit", depositRequest{Amount: 5_000})
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var funded balanceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &funded); err != nil {
		t.Fatalf("decode deposit response: %v", err)
	}
	if funded.Balance != 5_000 {
		t.Errorf("Balance = %d, want 5000", funded.Balance)
	}

	rec = rig.do(t, http.MethodPost, "/v1/listings", createListingRequest{
		Collection: "gallery", TokenID: "art-9", Seller: string(alice), Quantity: 1, UnitPrice: 2_000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	rec = rig.do(t, http.MethodPost, "/v1/listings/gallery/art-9/buy", buyRequest{
		Buyer: string(bob), Quantity: 1, Payment: 2_000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("buy = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if owner, _ := rig.gallery.OwnerOf("art-9"); owner != bob {
		t.Errorf("owner = %q, want %q", owner, bob)
	}

	rec = rig.do(t, http.MethodGet, "/v1/accounts/0xbob", nil)
	var drained balanceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &drained); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if drained.Balance != 3_000 {
		t.Errorf("balance after buy = %d, want 3000", drained.Balance)
	}
}

func TestServer_AdminValidation(t *testing.T) {
	rig := newServerRig(t)

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{
			name: "mint unknown collection",
			path: "/v1/collections/vapor/mint",
			body: mintRequest{Caller: string(testAdmin), To: string(alice), TokenID: "x", Quantity: 1},
			want: http.StatusNotFound,
		},
		{
			name: "mint without minter role",
			path: "/v1/collections/gallery/mint",
			body: mintRequest{Caller: string(bob), To: string(alice), TokenID: "x", Quantity: 1},
			want: http.StatusForbidden,
		},
		{
			name: "mint missing token id",
			path: "/v1/collections/gallery/mint",
			body: mintRequest{Caller: string(testAdmin), To: string(alice), Quantity: 1},
			want: http.StatusBadRequest,
		},
		{
			name: "approve missing owner",
			path: "/v1/collections/gallery/approve",
			body: approveRequest{},
			want: http.StatusBadRequest,
		},
		{
			name: "zero deposit",
			path: "/v1/accounts/0xbob/deposit",
			body: depositRequest{},
			want: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := rig.do(t, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestServer_MinterRoster(t *testing.T) {
	rig := newServerRig(t)

	// Strangers cannot change the roster.
	rec := rig.do(t, http.MethodPost, "/v1/collections/gallery/minters", minterRequest{
		Caller: string(bob), Account: string(alice),
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("stranger grant = %d, want 403: %s", rec.Code, rec.Body.String())
	}

	rec = rig.do(t, http.MethodPost, "/v1/collections/gallery/minters", minterRequest{
		Caller: string(testAdmin), Account: string(alice),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("grant = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	rec = rig.do(t, http.MethodPost, "/v1/collections/gallery/mint", mintRequest{
		Caller: string(alice), To: string(alice), TokenID: "self-1", Quantity: 1,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("mint after grant = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	rec = rig.do(t, http.MethodPost, "/v1/collections/gallery/minters", minterRequest{
		Caller: string(testAdmin), Account: string(alice), Revoke: true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	rec = rig.do(t, http.MethodPost, "/v1/collections/gallery/mint", mintRequest{
		Caller: string(alice), To: string(alice), TokenID: "self-2", Quantity: 1,
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("mint after revoke = %d, want 403: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_Health(t *testing.T) {
	rig := newServerRig(t)

	rec := rig.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s, want status ok", rec.Body.String())
	}
}

func TestServer_MetricsRoute(t *testing.T) {
	rig := newServerRig(t)
	rig.mintDeed(t, "art-4")

	rig.do(t, http.MethodPost, "/v1/listings", createListingRequest{
		Collection: "gallery", TokenID: "art-4", Seller: string(alice), Quantity: 1, UnitPrice: 100,
	})

	rec := rig.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `escrow_operations_total{op="list",outcome="ok"} 1`) {
		t.Errorf("metrics body missing list counter:\n%s", rec.Body.String())
	}
}

func TestServer_EventStream(t *testing.T) {
	rig := newServerRig(t)
	rig.mintDeed(t, "art-5")

	ts := httptest.NewServer(rig.server.router)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	if resp != nil {
		defer resp.Body.Close()
	}

	rec := rig.do(t, http.MethodPost, "/v1/listings", createListingRequest{
		Collection: "gallery", TokenID: "art-5", Seller: string(alice), Quantity: 1, UnitPrice: 100,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d, want 201", rec.Code)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev event.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if ev.Kind != event.KindListingCreated {
		t.Errorf("Kind = %q, want %q", ev.Kind, event.KindListingCreated)
	}
	if ev.TokenID != "art-5" || ev.Seller != alice {
		t.Errorf("event = %+v, want art-5 by alice", ev)
	}
}
