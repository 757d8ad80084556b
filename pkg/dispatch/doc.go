// Package dispatch routes inbound frames to typed message handlers.
//
// A Registry maps message type tags to Handler values. A Router peeks the
// "type" member of each frame, looks the handler up and runs it inside a
// fault barrier:
//
//	reg := dispatch.NewRegistry(logger)
//	reg.MustRegister(dispatch.NewHandler(protocol.TypeRootClass,
//	    func(ctx context.Context, req *protocol.RootClassRequest, conn dispatch.Conn) error {
//	        ...
//	    }))
//
//	router := dispatch.NewRouter(reg, dispatch.WithLogger(logger))
//	router.Use(dispatch.Tracing(), dispatch.NewMetrics(prometheus.DefaultRegisterer).Middleware())
//	router.Dispatch(ctx, conn, frame)
//
// Frames whose type has no handler are dropped without a reply. A handler
// that returns an error or panics produces exactly one Error envelope on
// the originating connection, and the connection stays usable.
package dispatch
