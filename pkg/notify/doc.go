// Package notify pushes asynchronous variable updates to subscribed
// connections.
//
// Handlers publish updates on a Bus; the Bus consumes them from an
// in-process watermill pub/sub and delivers each one to every connection
// subscribed to the variable's qualified name. Updates are delivered in
// publish order.
package notify
