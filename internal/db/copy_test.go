package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom(t *testing.T) {
	tests := []struct {
		name    string
		table   string
		ident   pgx.Identifier
		columns []string
		rows    [][]any
		copyErr error
		want    int64
		wantErr string
	}{
		{
			name:    "method rows with null instance",
			table:   "orgc_method",
			ident:   pgx.Identifier{"orgc_method"},
			columns: []string{"id", "method_instance"},
			rows:    [][]any{{int64(1), int64(1)}, {int64(2), int64(2)}, {int64(3), nil}},
			want:    3,
		},
		{
			name:    "schema qualified",
			table:   "soil.orgc_profile",
			ident:   pgx.Identifier{"soil", "orgc_profile"},
			columns: []string{"id"},
			rows:    [][]any{{int64(1)}},
			want:    1,
		},
		{
			name:    "copy failure",
			table:   "orgc_method",
			ident:   pgx.Identifier{"orgc_method"},
			columns: []string{"id"},
			rows:    [][]any{{int64(1)}},
			copyErr: fmt.Errorf("copy failed"),
			wantErr: "COPY INTO orgc_method",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			exp := mock.ExpectCopyFrom(tt.ident, tt.columns)
			if tt.copyErr != nil {
				exp.WillReturnError(tt.copyErr)
			} else {
				exp.WillReturnResult(tt.want)
			}

			n, err := CopyFrom(context.Background(), mock, tt.table, tt.columns, tt.rows)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, n)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCopyFrom_NoRowsSkipsCopy(t *testing.T) {
	n, err := CopyFrom(context.Background(), nil, "orgc_method", []string{"id"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTruncate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`TRUNCATE TABLE "orgc_profile_layer", "soil"."orgc_method"`).
		WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))

	err = Truncate(context.Background(), mock, "orgc_profile_layer", "soil.orgc_method")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTruncate_NoTables(t *testing.T) {
	assert.NoError(t, Truncate(context.Background(), nil))
}

func TestTruncate_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`TRUNCATE TABLE`).WillReturnError(fmt.Errorf("permission denied"))

	err = Truncate(context.Background(), mock, "orgc_method")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: truncate orgc_method")
}
