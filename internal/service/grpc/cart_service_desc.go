package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName — полное имя gRPC-сервиса корзины.
const ServiceName = "cart.v1.CartService"

const (
	methodGetCart        = "/" + ServiceName + "/GetCart"
	methodAddItem        = "/" + ServiceName + "/AddItem"
	methodUpdateQuantity = "/" + ServiceName + "/UpdateQuantity"
	methodRemoveItem     = "/" + ServiceName + "/RemoveItem"
	methodClearCart      = "/" + ServiceName + "/ClearCart"
	methodWatchCart      = "/" + ServiceName + "/WatchCart"
)

// CartServiceServer описывает серверную часть API корзины.
// Запросы и ответы передаются как google.protobuf.Struct.
type CartServiceServer interface {
	GetCart(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	AddItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateQuantity(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ClearCart(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	WatchCart(*emptypb.Empty, grpc.ServerStream) error
}

// RegisterCartServiceServer регистрирует реализацию на gRPC-сервере.
func RegisterCartServiceServer(s grpc.ServiceRegistrar, srv CartServiceServer) {
	s.RegisterService(&CartServiceDesc, srv)
}

// CartServiceDesc — дескриптор сервиса для grpc.Server.
var CartServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CartServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetCart", Handler: getCartHandler},
		{MethodName: "AddItem", Handler: structHandler(methodAddItem, CartServiceServer.AddItem)},
		{MethodName: "UpdateQuantity", Handler: structHandler(methodUpdateQuantity, CartServiceServer.UpdateQuantity)},
		{MethodName: "RemoveItem", Handler: structHandler(methodRemoveItem, CartServiceServer.RemoveItem)},
		{MethodName: "ClearCart", Handler: clearCartHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchCart", Handler: watchCartHandler, ServerStreams: true},
	},
	Metadata: "cart/v1/cart.proto",
}

type structMethod func(CartServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func structHandler(fullMethod string, call structMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(CartServiceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*structpb.Struct))
		})
	}
}

func emptyHandler(fullMethod string, call func(CartServiceServer, context.Context, *emptypb.Empty) (*structpb.Struct, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(emptypb.Empty)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(CartServiceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*emptypb.Empty))
		})
	}
}

var (
	getCartHandler   = emptyHandler(methodGetCart, CartServiceServer.GetCart)
	clearCartHandler = emptyHandler(methodClearCart, CartServiceServer.ClearCart)
)

func watchCartHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(CartServiceServer).WatchCart(in, stream)
}

// CartServiceClient — клиент API корзины.
type CartServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewCartServiceClient создаёт клиента поверх соединения.
func NewCartServiceClient(cc grpc.ClientConnInterface) *CartServiceClient {
	return &CartServiceClient{cc: cc}
}

// GetCart возвращает текущее состояние корзины.
func (c *CartServiceClient) GetCart(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodGetCart, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// AddItem добавляет товар из каталога.
func (c *CartServiceClient) AddItem(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invokeStruct(ctx, methodAddItem, in, opts...)
}

// UpdateQuantity устанавливает количество позиции.
func (c *CartServiceClient) UpdateQuantity(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invokeStruct(ctx, methodUpdateQuantity, in, opts...)
}

// RemoveItem удаляет позицию.
func (c *CartServiceClient) RemoveItem(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invokeStruct(ctx, methodRemoveItem, in, opts...)
}

// ClearCart очищает корзину.
func (c *CartServiceClient) ClearCart(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodClearCart, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// WatchCart открывает поток снимков корзины.
func (c *CartServiceClient) WatchCart(ctx context.Context, opts ...grpc.CallOption) (*CartWatchStream, error) {
	stream, err := c.cc.NewStream(ctx, &CartServiceDesc.Streams[0], methodWatchCart, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &CartWatchStream{stream: stream}, nil
}

func (c *CartServiceClient) invokeStruct(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// CartWatchStream читает снимки из WatchCart.
type CartWatchStream struct {
	stream grpc.ClientStream
}

// Recv блокируется до следующего снимка.
func (s *CartWatchStream) Recv() (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := s.stream.RecvMsg(out); err != nil {
		return nil, err
	}
	return out, nil
}
