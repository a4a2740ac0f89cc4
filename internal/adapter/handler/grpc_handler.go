package handler

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/armory-atlas/internal/core/domain"
	"github.com/rl1809/armory-atlas/internal/core/service"
)

const lendingServiceName = "armory.v1.Lending"

// LendingServer is the gRPC surface of the lending engine.
type LendingServer interface {
	Borrow(ctx context.Context, req *BorrowRequest) (*LoanReply, error)
	Return(ctx context.Context, req *ReturnRequest) (*LoanReply, error)
	Stock(ctx context.Context, req *StockRequest) (*StockReply, error)
}

func RegisterLendingServer(s grpc.ServiceRegistrar, srv LendingServer) {
	s.RegisterService(&lendingServiceDesc, srv)
}

var lendingServiceDesc = grpc.ServiceDesc{
	ServiceName: lendingServiceName,
	HandlerType: (*LendingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Borrow", Handler: borrowHandler},
		{MethodName: "Return", Handler: returnHandler},
		{MethodName: "Stock", Handler: stockHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "armory/v1/lending",
}

func borrowHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(BorrowRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LendingServer).Borrow(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + lendingServiceName + "/Borrow"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(LendingServer).Borrow(ctx, req.(*BorrowRequest))
	})
}

func returnHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReturnRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LendingServer).Return(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + lendingServiceName + "/Return"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(LendingServer).Return(ctx, req.(*ReturnRequest))
	})
}

func stockHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(StockRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LendingServer).Stock(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + lendingServiceName + "/Stock"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(LendingServer).Stock(ctx, req.(*StockRequest))
	})
}

type GRPCHandler struct {
	lending *service.LendingService
	catalog *service.CatalogService
	guard   *service.RequestGuard
	logger  *zap.Logger
}

func NewGRPCHandler(lending *service.LendingService, catalog *service.CatalogService, guard *service.RequestGuard, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{lending: lending, catalog: catalog, guard: guard, logger: logger}
}

func (h *GRPCHandler) Borrow(ctx context.Context, req *BorrowRequest) (*LoanReply, error) {
	loan, err := borrow(ctx, h.guard, h.lending, *req)
	if err != nil {
		return nil, h.statusError("Borrow", err)
	}
	return &LoanReply{Loan: loan}, nil
}

func (h *GRPCHandler) Return(ctx context.Context, req *ReturnRequest) (*LoanReply, error) {
	loan, err := giveBack(ctx, h.guard, h.lending, *req)
	if err != nil {
		return nil, h.statusError("Return", err)
	}
	return &LoanReply{Loan: loan}, nil
}

func (h *GRPCHandler) Stock(ctx context.Context, req *StockRequest) (*StockReply, error) {
	n, err := h.catalog.StockForProductSize(ctx, req.ProductID, req.Size)
	if err != nil {
		return nil, h.statusError("Stock", err)
	}
	return &StockReply{ProductID: req.ProductID, Size: req.Size, Quantity: n}, nil
}

func (h *GRPCHandler) statusError(method string, err error) error {
	if !isClientError(err) {
		h.logger.Error("grpc call failed", zap.String("method", method), zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(codeFor(err), err.Error())
}

func codeFor(err error) codes.Code {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, domain.ErrDuplicateKey), errors.Is(err, service.ErrDuplicateRequest):
		return codes.AlreadyExists
	case errors.Is(err, domain.ErrItemAlreadyBorrowed), errors.Is(err, domain.ErrNoActiveLoan):
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

// LendingClient calls armory.v1.Lending with the JSON codec.
type LendingClient struct {
	cc grpc.ClientConnInterface
}

func NewLendingClient(cc grpc.ClientConnInterface) *LendingClient {
	return &LendingClient{cc: cc}
}

func (c *LendingClient) Borrow(ctx context.Context, req *BorrowRequest, opts ...grpc.CallOption) (*LoanReply, error) {
	out := new(LoanReply)
	if err := c.invoke(ctx, "Borrow", req, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LendingClient) Return(ctx context.Context, req *ReturnRequest, opts ...grpc.CallOption) (*LoanReply, error) {
	out := new(LoanReply)
	if err := c.invoke(ctx, "Return", req, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LendingClient) Stock(ctx context.Context, req *StockRequest, opts ...grpc.CallOption) (*StockReply, error) {
	out := new(StockReply)
	if err := c.invoke(ctx, "Stock", req, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LendingClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+lendingServiceName+"/"+method, in, out, opts...)
}
