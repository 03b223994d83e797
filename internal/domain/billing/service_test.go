package billing

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ehr/inpatient/internal/platform/apperr"
	"github.com/ehr/inpatient/pkg/pagination"
)

// -- In-memory store --

type memTx struct{ mu sync.Mutex }

func (t *memTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(ctx)
}

type mockRepo struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]*Invoice
	payments []*Payment
	counters map[uuid.UUID]int64
	seq      int
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		invoices: make(map[uuid.UUID]*Invoice),
		counters: make(map[uuid.UUID]int64),
	}
}

func clone(inv *Invoice) *Invoice {
	cp := *inv
	cp.Items = append([]InvoiceItem(nil), inv.Items...)
	return &cp
}

func (m *mockRepo) NextInvoiceNumber(_ context.Context, hospitalID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[hospitalID]++
	return m.counters[hospitalID], nil
}

func (m *mockRepo) Create(_ context.Context, inv *Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv.ID = uuid.New()
	m.seq++
	inv.CreatedAt = time.Date(2026, 1, 1, 0, 0, m.seq, 0, time.UTC)
	inv.UpdatedAt = inv.CreatedAt
	for i := range inv.Items {
		inv.Items[i].ID = uuid.New()
		inv.Items[i].InvoiceID = inv.ID
	}
	m.invoices[inv.ID] = clone(inv)
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, apperr.ErrInvoiceNotFound
	}
	return clone(inv), nil
}

func (m *mockRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.Items = nil
	return inv, nil
}

func (m *mockRepo) UpdateSettlement(_ context.Context, inv *Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.invoices[inv.ID]
	if !ok {
		return apperr.ErrInvoiceNotFound
	}
	cur.AmountPaid = inv.AmountPaid
	cur.Status = inv.Status
	return nil
}

func (m *mockRepo) filter(keep func(*Invoice) bool, limit, offset int) ([]*Invoice, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Invoice
	for _, inv := range m.invoices {
		if keep(inv) {
			cp := clone(inv)
			cp.Items = nil
			all = append(all, cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	start, end := pagination.Params{Limit: limit, Offset: offset}.Window(len(all))
	return all[start:end], len(all), nil
}

func (m *mockRepo) List(_ context.Context, hospitalID uuid.UUID, status string, limit, offset int) ([]*Invoice, int, error) {
	return m.filter(func(inv *Invoice) bool {
		return inv.HospitalID == hospitalID && (status == "" || inv.Status == status)
	}, limit, offset)
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Invoice, int, error) {
	return m.filter(func(inv *Invoice) bool { return inv.PatientID == patientID }, limit, offset)
}

func (m *mockRepo) AddPayment(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	p.ReceivedAt = time.Now()
	cp := *p
	m.payments = append(m.payments, &cp)
	return nil
}

func (m *mockRepo) ListPayments(_ context.Context, invoiceID uuid.UUID) ([]*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Payment
	for _, p := range m.payments {
		if p.InvoiceID == invoiceID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) SumPayments(_ context.Context, invoiceID uuid.UUID) (decimal.Decimal, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum, n := decimal.Zero, 0
	for _, p := range m.payments {
		if p.InvoiceID == invoiceID {
			sum = sum.Add(p.Amount)
			n++
		}
	}
	return sum, n, nil
}

// -- Helpers --

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newRand(seed int64) *rand.Rand { return rand.New(rand.NewSource(seed)) }

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo, &memTx{}, zerolog.Nop(), nil, ""), repo
}

func sampleRequest(hospitalID uuid.UUID) CreateInvoiceRequest {
	return CreateInvoiceRequest{
		HospitalID: hospitalID,
		PatientID:  uuid.New(),
		Items: []ItemInput{
			{Description: "Ward bed (2 days)", Quantity: 2, UnitPrice: d("100")},
			{Description: "Consultation", Quantity: 1, UnitPrice: d("50")},
		},
		TaxPercent: d("10"),
		Discount:   d("20"),
	}
}

func create(t *testing.T, svc *Service, req CreateInvoiceRequest) *Invoice {
	t.Helper()
	inv, err := svc.CreateInvoice(context.Background(), req)
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	return inv
}

func pay(t *testing.T, svc *Service, id uuid.UUID, amount string) *Invoice {
	t.Helper()
	_, inv, err := svc.RecordPayment(context.Background(), PaymentRequest{InvoiceID: id, Amount: d(amount), Method: "cash"})
	if err != nil {
		t.Fatalf("record payment of %s: %v", amount, err)
	}
	return inv
}

func expectErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
}

func expectAmount(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(d(want)) {
		t.Errorf("expected %s %s, got %s", name, want, got)
	}
}

// -- Invoice Engine --

func TestService_CreateInvoice(t *testing.T) {
	svc, _ := newTestService()
	inv := create(t, svc, sampleRequest(uuid.New()))

	if inv.InvoiceNumber != "INV-000001" {
		t.Errorf("expected INV-000001, got %s", inv.InvoiceNumber)
	}
	expectAmount(t, "subtotal", inv.Subtotal, "250")
	expectAmount(t, "tax", inv.TaxAmount, "25")
	expectAmount(t, "total", inv.TotalAmount, "255")
	expectAmount(t, "amount paid", inv.AmountPaid, "0")
	if inv.Status != StatusPending {
		t.Errorf("expected pending, got %s", inv.Status)
	}
	if len(inv.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(inv.Items))
	}
	if inv.Items[0].Position != 1 {
		t.Errorf("expected first position 1, got %d", inv.Items[0].Position)
	}
	expectAmount(t, "line total", inv.Items[0].LineTotal, "200")

	stored, err := svc.GetInvoice(context.Background(), inv.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stored.Items) != 2 {
		t.Errorf("expected 2 stored items, got %d", len(stored.Items))
	}
}

func TestService_CreateInvoice_NumbersPerHospital(t *testing.T) {
	svc := NewService(newMockRepo(), &memTx{}, zerolog.Nop(), nil, "H1-")
	h1, h2 := uuid.New(), uuid.New()

	got := []string{
		create(t, svc, sampleRequest(h1)).InvoiceNumber,
		create(t, svc, sampleRequest(h1)).InvoiceNumber,
		create(t, svc, sampleRequest(h2)).InvoiceNumber,
	}
	want := []string{"H1-000001", "H1-000002", "H1-000001"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("invoice %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestService_CreateInvoice_ConcurrentNumbersAreUnique(t *testing.T) {
	svc, _ := newTestService()
	hospitalID := uuid.New()

	const n = 40
	numbers := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv, err := svc.CreateInvoice(context.Background(), sampleRequest(hospitalID))
			if err != nil {
				t.Errorf("create invoice: %v", err)
				return
			}
			numbers <- inv.InvoiceNumber
		}()
	}
	wg.Wait()
	close(numbers)

	seen := make(map[string]bool)
	for num := range numbers {
		if seen[num] {
			t.Errorf("duplicate invoice number %s", num)
		}
		seen[num] = true
	}
	if len(seen) != n {
		t.Errorf("expected %d numbers, got %d", n, len(seen))
	}
	if !seen["INV-000040"] {
		t.Error("expected numbering to reach INV-000040 without gaps")
	}
}

func TestService_CreateInvoice_Validation(t *testing.T) {
	svc, _ := newTestService()
	hospitalID := uuid.New()

	cases := map[string]func(r *CreateInvoiceRequest){
		"no hospital":         func(r *CreateInvoiceRequest) { r.HospitalID = uuid.Nil },
		"no patient":          func(r *CreateInvoiceRequest) { r.PatientID = uuid.Nil },
		"no items":            func(r *CreateInvoiceRequest) { r.Items = nil },
		"zero quantity":       func(r *CreateInvoiceRequest) { r.Items[0].Quantity = 0 },
		"negative price":      func(r *CreateInvoiceRequest) { r.Items[1].UnitPrice = d("-1") },
		"fractional cents":    func(r *CreateInvoiceRequest) { r.Items[1].UnitPrice = d("1.005") },
		"empty description":   func(r *CreateInvoiceRequest) { r.Items[0].Description = "" },
		"tax over 100":        func(r *CreateInvoiceRequest) { r.TaxPercent = d("100.01") },
		"negative tax":        func(r *CreateInvoiceRequest) { r.TaxPercent = d("-1") },
		"negative discount":   func(r *CreateInvoiceRequest) { r.Discount = d("-0.01") },
		"discount over gross": func(r *CreateInvoiceRequest) { r.Discount = d("275.01") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := sampleRequest(hospitalID)
			mutate(&req)
			_, err := svc.CreateInvoice(context.Background(), req)
			expectErr(t, err, apperr.ErrValidation)
		})
	}
}

func TestService_CreateInvoice_DiscountEqualToGrossIsPaid(t *testing.T) {
	svc, _ := newTestService()
	req := sampleRequest(uuid.New())
	req.Discount = d("275")

	inv := create(t, svc, req)
	if !inv.TotalAmount.IsZero() {
		t.Errorf("expected zero total, got %s", inv.TotalAmount)
	}
	if inv.Status != StatusPaid {
		t.Errorf("expected paid, got %s", inv.Status)
	}
}

func TestComputeTotals_TaxRounding(t *testing.T) {
	totals, err := ComputeTotals([]ItemInput{{Description: "x", Quantity: 3, UnitPrice: d("33.33")}}, d("12.5"), decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 12.49875 rounds to 12.50
	got := []string{totals.Subtotal.StringFixed(2), totals.TaxAmount.StringFixed(2), totals.Total.StringFixed(2)}
	want := []string{"99.99", "12.50", "112.49"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v, got %v", want, got)
			break
		}
	}
}

// Totals hold for arbitrary item sets, tax rates and discounts.
func TestComputeTotals_RandomItemSets(t *testing.T) {
	rng := newRand(42)
	for run := 0; run < 500; run++ {
		items := make([]ItemInput, 1+rng.Intn(8))
		expected := decimal.Zero
		for i := range items {
			qty := 1 + rng.Intn(20)
			price := decimal.New(int64(rng.Intn(500000)), -2)
			items[i] = ItemInput{Description: "line", Quantity: qty, UnitPrice: price}
			expected = expected.Add(price.Mul(decimal.NewFromInt(int64(qty))))
		}
		taxPercent := decimal.New(int64(rng.Intn(10001)), -2)
		tax := expected.Mul(taxPercent).Div(hundred).Round(2)
		discount := decimal.New(rng.Int63n(expected.Add(tax).Shift(2).IntPart()+1), -2)

		totals, err := ComputeTotals(items, taxPercent, discount)
		if err != nil {
			t.Fatalf("run %d: unexpected error: %v", run, err)
		}
		if !totals.Subtotal.Equal(expected) || !totals.TaxAmount.Equal(tax) {
			t.Fatalf("run %d: subtotal %s tax %s, want %s and %s", run, totals.Subtotal, totals.TaxAmount, expected, tax)
		}
		if !totals.Total.Equal(expected.Add(tax).Sub(discount)) || totals.Total.IsNegative() {
			t.Fatalf("run %d: unexpected total %s", run, totals.Total)
		}
	}
}

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		total, paid string
		want        string
	}{
		{"100", "0", StatusPending},
		{"100", "0.01", StatusPartial},
		{"100", "99.99", StatusPartial},
		{"100", "100", StatusPaid},
		{"100", "150", StatusPaid},
		{"0", "0", StatusPaid},
	}
	for _, tc := range cases {
		if got := DeriveStatus(d(tc.total), d(tc.paid)); got != tc.want {
			t.Errorf("DeriveStatus(%s, %s) = %s, want %s", tc.total, tc.paid, got, tc.want)
		}
	}
}

func TestService_DraftLifecycle(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	req := sampleRequest(uuid.New())
	req.Draft = true

	inv := create(t, svc, req)
	if inv.Status != StatusDraft {
		t.Errorf("expected draft, got %s", inv.Status)
	}

	issued, err := svc.IssueInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.Status != StatusPending {
		t.Errorf("expected pending after issue, got %s", issued.Status)
	}

	_, err = svc.IssueInvoice(ctx, inv.ID)
	expectErr(t, err, apperr.ErrInvoiceNotEditable)

	_, err = svc.IssueInvoice(ctx, uuid.New())
	expectErr(t, err, apperr.ErrInvoiceNotFound)
}

func TestService_PaymentOnDraftLeavesDraft(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	req := sampleRequest(uuid.New())
	req.Draft = true
	inv := create(t, svc, req)

	after := pay(t, svc, inv.ID, "10")
	if after.Status != StatusPartial {
		t.Errorf("expected partial, got %s", after.Status)
	}
	expectAmount(t, "amount paid", after.AmountPaid, "10")

	_, err := svc.IssueInvoice(ctx, inv.ID)
	expectErr(t, err, apperr.ErrInvoiceNotEditable)
	_, err = svc.CancelInvoice(ctx, inv.ID)
	expectErr(t, err, apperr.ErrInvoiceNotEditable)
}

func TestService_CancelInvoice(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	pending := create(t, svc, sampleRequest(uuid.New()))
	got, err := svc.CancelInvoice(ctx, pending.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", got.Status)
	}

	_, err = svc.CancelInvoice(ctx, pending.ID)
	expectErr(t, err, apperr.ErrInvoiceNotEditable)

	_, err = svc.CancelInvoice(ctx, uuid.New())
	expectErr(t, err, apperr.ErrInvoiceNotFound)
}

func TestService_CancelRulesAndPaymentsAfterCancel(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	hospitalID := uuid.New()

	paid := create(t, svc, sampleRequest(hospitalID))
	pay(t, svc, paid.ID, "50")
	_, err := svc.CancelInvoice(ctx, paid.ID)
	expectErr(t, err, apperr.ErrInvoiceNotEditable)

	req := sampleRequest(hospitalID)
	req.Draft = true
	draft := create(t, svc, req)
	cancelled, err := svc.CancelInvoice(ctx, draft.ID)
	if err != nil {
		t.Fatalf("cancel draft: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", cancelled.Status)
	}

	_, _, err = svc.RecordPayment(ctx, PaymentRequest{InvoiceID: draft.ID, Amount: d("1"), Method: "cash"})
	expectErr(t, err, apperr.ErrInvoiceNotPayable)
}

func TestService_ListInvoices(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	hospitalID := uuid.New()

	first := create(t, svc, sampleRequest(hospitalID))
	second := create(t, svc, sampleRequest(hospitalID))
	pay(t, svc, second.ID, "1")
	create(t, svc, sampleRequest(uuid.New()))

	items, total, err := svc.ListInvoices(ctx, hospitalID, "", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || items[0].ID != second.ID {
		t.Errorf("expected 2 invoices newest first, got %d", total)
	}

	items, total, err = svc.ListInvoices(ctx, hospitalID, StatusPending, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || items[0].ID != first.ID {
		t.Errorf("expected only the unpaid invoice, got %d", total)
	}

	_, _, err = svc.ListInvoices(ctx, hospitalID, "overdue", 10, 0)
	expectErr(t, err, apperr.ErrValidation)

	items, total, err = svc.ListPatientInvoices(ctx, first.PatientID, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || items[0].ID != first.ID {
		t.Errorf("expected the patient's invoice, got %d", total)
	}
}

// -- Payment Ledger --

func TestService_PaymentWalkthrough(t *testing.T) {
	svc, _ := newTestService()
	inv := create(t, svc, sampleRequest(uuid.New()))
	if inv.Status != StatusPending {
		t.Fatalf("expected pending, got %s", inv.Status)
	}
	expectAmount(t, "total", inv.TotalAmount, "255")

	inv = pay(t, svc, inv.ID, "100")
	expectAmount(t, "amount paid", inv.AmountPaid, "100")
	expectAmount(t, "balance", inv.Balance(), "155")
	if inv.Status != StatusPartial {
		t.Errorf("expected partial, got %s", inv.Status)
	}

	inv = pay(t, svc, inv.ID, "155")
	expectAmount(t, "amount paid", inv.AmountPaid, "255")
	expectAmount(t, "balance", inv.Balance(), "0")
	if inv.Status != StatusPaid {
		t.Errorf("expected paid, got %s", inv.Status)
	}

	_, _, err := svc.RecordPayment(context.Background(), PaymentRequest{InvoiceID: inv.ID, Amount: d("1"), Method: "cash"})
	expectErr(t, err, apperr.ErrInvoiceNotPayable)
}

func TestService_RecordPayment_Errors(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	inv := create(t, svc, sampleRequest(uuid.New()))

	for _, amount := range []string{"0", "-5", "0.001"} {
		_, _, err := svc.RecordPayment(ctx, PaymentRequest{InvoiceID: inv.ID, Amount: d(amount), Method: "cash"})
		if !errors.Is(err, apperr.ErrInvalidAmount) {
			t.Errorf("amount %s: expected %v, got %v", amount, apperr.ErrInvalidAmount, err)
		}
	}

	_, _, err := svc.RecordPayment(ctx, PaymentRequest{InvoiceID: inv.ID, Amount: d("5"), Method: "barter"})
	expectErr(t, err, apperr.ErrValidation)

	_, _, err = svc.RecordPayment(ctx, PaymentRequest{InvoiceID: uuid.New(), Amount: d("5"), Method: "cash"})
	expectErr(t, err, apperr.ErrInvoiceNotFound)

	payments, err := svc.ListPayments(ctx, inv.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(payments) != 0 {
		t.Errorf("rejected payments were recorded: %d", len(payments))
	}
}

func TestService_Overpayment(t *testing.T) {
	svc, _ := newTestService()
	inv := create(t, svc, sampleRequest(uuid.New()))

	inv = pay(t, svc, inv.ID, "300")
	if inv.Status != StatusPaid {
		t.Errorf("expected paid, got %s", inv.Status)
	}
	expectAmount(t, "balance", inv.Balance(), "-45")
}

// Any sequence of payments keeps the ledger sum equal to AmountPaid and the
// status on its threshold.
func TestService_PaymentSequencesStayConsistent(t *testing.T) {
	rng := newRand(7)
	for run := 0; run < 50; run++ {
		svc, _ := newTestService()
		ctx := context.Background()
		inv := create(t, svc, sampleRequest(uuid.New()))

		for inv.Payable() {
			amount := decimal.New(int64(1+rng.Intn(9000)), -2)
			var err error
			_, inv, err = svc.RecordPayment(ctx, PaymentRequest{InvoiceID: inv.ID, Amount: amount, Method: "card"})
			if err != nil {
				t.Fatalf("run %d: record payment: %v", run, err)
			}

			rec, err := svc.Reconcile(ctx, inv.ID)
			if err != nil {
				t.Fatalf("run %d: reconcile: %v", run, err)
			}
			if !rec.Consistent {
				t.Fatalf("run %d: ledger drifted: %+v", run, rec)
			}
			if want := DeriveStatus(inv.TotalAmount, inv.AmountPaid); inv.Status != want {
				t.Fatalf("run %d: status %s, want %s", run, inv.Status, want)
			}
		}
		if inv.Status != StatusPaid {
			t.Errorf("run %d: expected paid, got %s", run, inv.Status)
		}
	}
}

func TestService_ConcurrentPayments(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	req := sampleRequest(uuid.New())
	req.Items = []ItemInput{{Description: "stay", Quantity: 1, UnitPrice: d("1000")}}
	req.TaxPercent, req.Discount = decimal.Zero, decimal.Zero
	inv := create(t, svc, req)

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := svc.RecordPayment(ctx, PaymentRequest{InvoiceID: inv.ID, Amount: d("10"), Method: "cash"}); err != nil {
				t.Errorf("record payment: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := svc.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectAmount(t, "amount paid", got.AmountPaid, "400")
	if got.Status != StatusPartial {
		t.Errorf("expected partial, got %s", got.Status)
	}

	rec, err := svc.Reconcile(ctx, inv.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.Consistent || rec.PaymentCount != n {
		t.Errorf("expected %d consistent payments, got %+v", n, rec)
	}
	expectAmount(t, "balance", rec.Balance, "600")
}

func TestService_Reconcile_DetectsDrift(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	inv := create(t, svc, sampleRequest(uuid.New()))
	pay(t, svc, inv.ID, "10")

	repo.invoices[inv.ID].AmountPaid = d("20")
	rec, err := svc.Reconcile(ctx, inv.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Consistent {
		t.Error("expected drift to be reported")
	}
	expectAmount(t, "payments total", rec.PaymentsTotal, "10")

	_, err = svc.Reconcile(ctx, uuid.New())
	expectErr(t, err, apperr.ErrInvoiceNotFound)
}
