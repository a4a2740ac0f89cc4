package handler

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func newGRPCClient(t *testing.T, ts *testServer) *LendingClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)

	srv := grpc.NewServer()
	RegisterLendingServer(srv, NewGRPCHandler(ts.lending, ts.catalog, ts.guard, nil))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewLendingClient(conn)
}

func TestGRPC_BorrowReturnStock(t *testing.T) {
	ts := newTestServer(t)
	client := newGRPCClient(t, ts)
	ctx := context.Background()

	stock, err := client.Stock(ctx, &StockRequest{ProductID: "BOOT-1", Size: "10"})
	require.NoError(t, err)
	assert.Equal(t, 1, stock.Quantity)

	reply, err := client.Borrow(ctx, &BorrowRequest{RequestID: "g1", SSN: "900101-1234", ItemID: ts.itemID})
	require.NoError(t, err)
	assert.Equal(t, ts.itemID, reply.Loan.ItemID)

	_, err = client.Borrow(ctx, &BorrowRequest{SSN: "900101-1234", ItemID: ts.itemID})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = client.Borrow(ctx, &BorrowRequest{RequestID: "g1", SSN: "900101-1234", ItemID: ts.itemID})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	returned, err := client.Return(ctx, &ReturnRequest{LoanID: reply.Loan.ID})
	require.NoError(t, err)
	assert.NotNil(t, returned.Loan.ReturnDate)

	_, err = client.Return(ctx, &ReturnRequest{ItemID: ts.itemID})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	stock, err = client.Stock(ctx, &StockRequest{ProductID: "BOOT-1", Size: "10"})
	require.NoError(t, err)
	assert.Equal(t, 1, stock.Quantity)
}

func TestGRPC_ErrorCodes(t *testing.T) {
	ts := newTestServer(t)
	client := newGRPCClient(t, ts)
	ctx := context.Background()

	_, err := client.Borrow(ctx, &BorrowRequest{SSN: "nobody", ItemID: ts.itemID})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.Return(ctx, &ReturnRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Stock(ctx, &StockRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
