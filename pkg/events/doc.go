// Package events translates platform domain events into notification routing
// requests.
//
// Each supported event maps to exactly one template, notification type and
// priority, plus whether it may be digested and whether it honors the user's
// quiet hours. Consumers decode the event, call Translate and hand the request
// to notifications.Manager.RouteAndDispatch.
package events
