// Package workeragent implements the worker side of the HTTP Session
// Protocol (spec.md section 6): a small HTTP service, run on every host in
// a task's computer pool, that exposes pty-backed shell sessions to the
// Remote Session Broker over the endpoint table in that section. Requests
// may be proxied; when they are, X-TARGET-HOST identifies the real
// destination, but this service itself only ever answers for the sessions
// it locally owns.
package workeragent
