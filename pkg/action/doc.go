// Package action turns declarative HTTP request descriptors into callable
// actions.
//
// A Factory carries the base URL, transport, invalidator and telemetry that
// actions share. Build binds a Descriptor to a Factory:
//
//	factory, err := action.NewFactory(&action.Config{
//		BaseURL:     "https://api.example.com",
//		Invalidator: store,
//	})
//
//	createUser := action.MustBuild(factory, action.Descriptor[NewUser, User]{
//		Endpoint: "/users",
//		Method:   action.MethodPost,
//		Tags:     action.Tag("users"),
//	})
//
//	user, err := createUser.Call(ctx, NewUser{Name: "x"})
//
// Each call issues exactly one request. GET payloads become query parameters,
// other methods send JSON, and *Form payloads go out as multipart bodies.
// Non-2xx responses fail with an *Error of KindHTTP and are never parsed.
// After a successful call the descriptor tags are invalidated in order.
//
// Every failure is an *Error whose Kind is one of configuration, transform,
// http, network or parse.
package action
