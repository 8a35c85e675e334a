// ============================================================================
// Shopfloor Planner Server - gRPC / HTTP 傳輸層
// ============================================================================
//
// Package: internal/server
// 文件: server.go
// 功能: 將 Controller 的兩個邊界操作暴露為 gRPC 服務與 HTTP JSON 端點
//
// gRPC 服務:
//   planner.v1.PlanningService
//   ├── Solve(google.protobuf.Struct)    returns (google.protobuf.Struct)
//   └── Simulate(google.protobuf.Struct) returns (google.protobuf.Struct)
//
//   Payload 為 JSON 物件的 Struct 表示，欄位名稱與 HTTP 端點完全一致，
//   因此服務描述以手寫的 grpc.ServiceDesc 註冊，不需要產生的 stub。
//
// HTTP 端點:
//   POST /solve             - Request -> SolveResult
//   POST /whatif/simulate   - SimulateRequest -> SimulateResult
//   GET  /healthz           - 存活檢查
//   GET  /metrics           - Prometheus 指標
//
// 錯誤處理:
//   - 無法解碼的 payload: gRPC InvalidArgument / HTTP 400
//   - 無可行解: 正常回應（status = failed）
//
// ============================================================================

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ChuLiYu/shopfloor-planner/internal/controller"
	"github.com/ChuLiYu/shopfloor-planner/pkg/types"
)

// log 回傳呼叫當下的 slog.Default
func log() *slog.Logger { return slog.Default() }

// ServiceName 完整的 gRPC 服務名稱
const ServiceName = "planner.v1.PlanningService"

const (
	solveMethod    = "/" + ServiceName + "/Solve"
	simulateMethod = "/" + ServiceName + "/Simulate"
)

// PlanningServer 是 PlanningService 的伺服端介面
type PlanningServer interface {
	Solve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Simulate(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc PlanningService 的服務描述
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PlanningServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Solve", Handler: solveHandler},
		{MethodName: "Simulate", Handler: simulateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "planner/v1/planning.proto",
}

// Register 將 srv 註冊到 gRPC 伺服器
func Register(g grpc.ServiceRegistrar, srv PlanningServer) {
	g.RegisterService(&ServiceDesc, srv)
}

func solveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PlanningServer).Solve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: solveMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PlanningServer).Solve(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func simulateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PlanningServer).Simulate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: simulateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PlanningServer).Simulate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ============================================================================
// Server
// ============================================================================

// Server implements PlanningServer on top of a Controller.
type Server struct {
	controller *controller.Controller
}

// NewServer creates a new server instance.
func NewServer(ctrl *controller.Controller) *Server {
	return &Server{controller: ctrl}
}

// Solve handles a schedule request.
func (s *Server) Solve(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req types.Request
	if err := FromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid solve request: %v", err)
	}
	return ToStruct(s.controller.Solve(req))
}

// Simulate handles a what-if simulation.
func (s *Server) Simulate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req types.SimulateRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid simulate request: %v", err)
	}
	return ToStruct(s.controller.Simulate(req))
}

// UnaryLogger logs every unary call with its duration and status code.
func UnaryLogger(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	log().Debug("gRPC call",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start))
	return resp, err
}

// NewGRPCServer 建立已註冊 PlanningService 的 gRPC 伺服器
func NewGRPCServer(srv PlanningServer, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(UnaryLogger)}, opts...)
	g := grpc.NewServer(opts...)
	Register(g, srv)
	return g
}

// ============================================================================
// Struct 編解碼
// ============================================================================

// ToStruct 以 JSON 表示將 v 轉為 structpb.Struct
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return out, nil
}

// FromStruct 以 JSON 表示將 s 解碼到 v
func FromStruct(s *structpb.Struct, v any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
