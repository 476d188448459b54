package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nokasa/pickup-backend/internal/dashboard"
	"github.com/nokasa/pickup-backend/internal/invoices"
	"github.com/nokasa/pickup-backend/pkg/auth"
	"github.com/nokasa/pickup-backend/pkg/enums"
	pkgerrors "github.com/nokasa/pickup-backend/pkg/errors"
)

type stubInvoicesService struct {
	get  func(ctx context.Context, principal auth.Principal, invoiceNumber string) (*invoices.Invoice, error)
	list func(ctx context.Context, principal auth.Principal) ([]invoices.DayGroup, error)
}

func (s *stubInvoicesService) GetInvoice(ctx context.Context, principal auth.Principal, invoiceNumber string) (*invoices.Invoice, error) {
	return s.get(ctx, principal, invoiceNumber)
}

func (s *stubInvoicesService) ListTransactions(ctx context.Context, principal auth.Principal) ([]invoices.DayGroup, error) {
	return s.list(ctx, principal)
}

type stubDashboardService struct {
	home func(ctx context.Context, principal auth.Principal, query dashboard.Query) (*dashboard.Dashboard, error)
}

func (s *stubDashboardService) Home(ctx context.Context, principal auth.Principal, query dashboard.Query) (*dashboard.Dashboard, error) {
	return s.home(ctx, principal, query)
}

func TestGetInvoice(t *testing.T) {
	svc := &stubInvoicesService{
		get: func(ctx context.Context, principal auth.Principal, invoiceNumber string) (*invoices.Invoice, error) {
			if invoiceNumber != "INV-20260310-0001" {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Invoice not found")
			}
			return &invoices.Invoice{InvoiceNumber: invoiceNumber, Total: decimal.NewFromInt(59)}, nil
		},
	}

	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/api/v1/profile/invoices/INV-20260310-0001", nil), 3, enums.EntityTypeVendor)
	req = addRouteParam(req, "invoiceNumber", "INV-20260310-0001")
	resp := httptest.NewRecorder()
	GetInvoice(svc, testLogger())(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	var envelope struct {
		Data invoices.Invoice `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.True(t, envelope.Data.Total.Equal(decimal.NewFromInt(59)))

	req = withPrincipal(httptest.NewRequest(http.MethodGet, "/api/v1/profile/invoices/INV-x", nil), 3, enums.EntityTypeVendor)
	req = addRouteParam(req, "invoiceNumber", "INV-x")
	resp = httptest.NewRecorder()
	GetInvoice(svc, testLogger())(resp, req)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestListTransactions(t *testing.T) {
	svc := &stubInvoicesService{
		list: func(ctx context.Context, principal auth.Principal) ([]invoices.DayGroup, error) {
			return []invoices.DayGroup{{Date: "10 Mar 2026", Data: []invoices.ReportEntry{{OrderID: 1, ItemCount: 2}}}}, nil
		},
	}
	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/api/v1/profile/transactions", nil), 4, enums.EntityTypeAgent)
	resp := httptest.NewRecorder()
	ListTransactions(svc, testLogger())(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	var envelope struct {
		Data struct {
			Transactions []invoices.DayGroup `json:"transactions"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data.Transactions, 1)
	require.Equal(t, "10 Mar 2026", envelope.Data.Transactions[0].Date)
}

func TestHomepageQuery(t *testing.T) {
	svc := &stubDashboardService{
		home: func(ctx context.Context, principal auth.Principal, query dashboard.Query) (*dashboard.Dashboard, error) {
			require.Equal(t, "new", query.OrderType)
			require.Equal(t, "1", query.Sort)
			return &dashboard.Dashboard{Stats: dashboard.Stats{TodaysOrders: 2}}, nil
		},
	}
	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/api/v1/homepage?orderType=NEW&sort=1", nil), 3, enums.EntityTypeVendor)
	resp := httptest.NewRecorder()
	Homepage(svc, testLogger())(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
}

func TestHomepageRejectsUsers(t *testing.T) {
	svc := &stubDashboardService{
		home: func(ctx context.Context, principal auth.Principal, query dashboard.Query) (*dashboard.Dashboard, error) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "Invalid user type")
		},
	}
	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/api/v1/homepage?orderType=new&sort=0", nil), 5, enums.EntityTypeUser)
	resp := httptest.NewRecorder()
	Homepage(svc, testLogger())(resp, req)
	require.Equal(t, http.StatusForbidden, resp.Code)
}
