package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"syscall"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/andrsadr/koravi/internal/domain"
)

func TestListQueryFilterOrder(t *testing.T) {
	query, args := listQuery(domain.ListFilter{
		Search: "jane",
		Status: domain.StatusActive,
		Labels: []string{"VIP", "Regular"},
		Limit:  20,
		Offset: 40,
	})

	search := strings.Index(query, "search_vector @@")
	status := strings.Index(query, "status = $3")
	labels := strings.Index(query, "labels && $4")
	require.True(t, search > 0 && search < status && status < labels, query)
	require.Contains(t, query, "ORDER BY updated_at DESC LIMIT $5 OFFSET $6")

	require.Len(t, args, 6)
	require.Equal(t, "jane", args[0])
	require.Equal(t, "%jane%", args[1])
	require.Equal(t, "active", args[2])
	require.Equal(t, 20, args[4])
	require.Equal(t, 40, args[5])
}

func TestListQueryWithoutFilters(t *testing.T) {
	query, args := listQuery(domain.ListFilter{})
	require.NotContains(t, query, "WHERE")
	require.NotContains(t, query, "LIMIT")
	require.True(t, strings.HasSuffix(query, "ORDER BY updated_at DESC"))
	require.Empty(t, args)
}

func TestListQueryOffsetDefaultsPageSize(t *testing.T) {
	query, args := listQuery(domain.ListFilter{Offset: 10})
	require.Contains(t, query, "LIMIT $1 OFFSET $2")
	require.Equal(t, []any{DefaultPageSize, 10}, args)
}

func TestListQueryIgnoresUnknownStatus(t *testing.T) {
	query, _ := listQuery(domain.ListFilter{Status: "deleted"})
	require.NotContains(t, query, "status =")
}

func TestEscapeLike(t *testing.T) {
	require.Equal(t, `50\%\_off\\`, escapeLike(`50%_off\`))
}

func TestNormalizeClassifiesErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      string
		retryable bool
	}{
		{name: "unique violation", err: &pq.Error{Code: "23505", Message: "dup"}, code: "23505"},
		{name: "check violation", err: &pq.Error{Code: "23514", Message: "check"}, code: "23514"},
		{name: "connection failure", err: &pq.Error{Code: "08006", Message: "conn"}, code: "08006", retryable: true},
		{name: "deadlock", err: &pq.Error{Code: "40P01", Message: "deadlock"}, code: "40P01", retryable: true},
		{name: "admin shutdown", err: &pq.Error{Code: "57P01", Message: "shutdown"}, code: "57P01", retryable: true},
		{name: "bad conn", err: driver.ErrBadConn, code: domain.CodeBackendUnavailable, retryable: true},
		{name: "refused", err: fmt.Errorf("dial: %w", syscall.ECONNREFUSED), code: domain.CodeBackendUnavailable, retryable: true},
		{name: "cancelled", err: context.Canceled, code: domain.CodeUnexpected},
		{name: "other", err: errors.New("weird"), code: domain.CodeUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := normalize("op", tt.err)
			var de *domain.DataError
			require.ErrorAs(t, err, &de)
			require.Equal(t, tt.code, de.Code)
			require.Equal(t, tt.retryable, de.Retryable)
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestNormalizeKeepsDataErrors(t *testing.T) {
	nf := domain.NotFoundError("get client", "x")
	require.Same(t, nf, normalize("other", nf))
	require.NoError(t, normalize("op", nil))
}

func TestUndefinedTableIsTerminal(t *testing.T) {
	err := normalize("ping", &pq.Error{Code: "42P01", Message: `relation "clients" does not exist`})
	require.Equal(t, domain.CodeUndefinedTable, domain.ErrorCode(err))
	require.False(t, domain.IsRetryable(err))
}
