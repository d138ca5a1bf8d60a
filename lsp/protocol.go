// Copyright (C) 2025 Tessellate AI (oss@tessellate.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// JSONRPCVersion is the JSON-RPC version used by LSP.
const JSONRPCVersion = "2.0"

// MethodCancelRequest is the protocol's best-effort cancellation notification.
const MethodCancelRequest = "$/cancelRequest"

// =============================================================================
// JSON-RPC MESSAGE TYPES
// =============================================================================

// request represents an outbound JSON-RPC request or notification.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// response represents an inbound JSON-RPC response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// outboundResponse answers a server-initiated request. The id is echoed
// back verbatim because servers may use string or numeric ids. On success
// Result is always present, "null" for an empty success; on error it is
// absent per JSON-RPC.
type outboundResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// RequestHandler handles a server-initiated request. The returned value is
// sent back as the result; a non-nil *ResponseError is sent instead when
// the request cannot be served.
type RequestHandler func(params json.RawMessage) (any, *ResponseError)

// NotificationHandler handles a server-initiated notification.
type NotificationHandler func(params json.RawMessage)

// =============================================================================
// PROTOCOL
// =============================================================================

// Protocol handles JSON-RPC communication over a duplex byte stream,
// typically the stdio pipes of a language server subprocess.
//
// Description:
//
//	Implements the LSP base protocol using Content-Length headers. Every
//	outbound request carries a monotonically increasing id unique for the
//	lifetime of the Protocol; responses are matched by id and delivered to
//	exactly one waiter. Responses whose id matches no pending request
//	(stale after a restart) are discarded with a warning. Server-initiated
//	requests and notifications are dispatched to registered handlers on
//	the reader goroutine.
//
// Thread Safety:
//
//	Safe for concurrent use. Multiple goroutines can send requests and
//	notifications simultaneously.
type Protocol struct {
	reader *bufio.Reader
	writer io.Writer

	writeMu sync.Mutex
	nextID  atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]chan response

	handlersMu      sync.RWMutex
	requestHandlers map[string]RequestHandler
	notifHandlers   map[string]NotificationHandler

	// requestTimeout applies when the caller's context has no deadline.
	// Zero means wait indefinitely.
	requestTimeout time.Duration

	closed   atomic.Bool
	done     chan struct{}
	closeErr error
	closeMu  sync.Mutex

	language string
}

// NewProtocol creates a protocol handler over the given reader (server
// stdout) and writer (server stdin). The language tag is used only for
// logging. requestTimeout is the default timeout applied to requests whose
// context carries no deadline; zero disables it.
func NewProtocol(r io.Reader, w io.Writer, language string, requestTimeout time.Duration) *Protocol {
	var reader *bufio.Reader
	if r != nil {
		reader = bufio.NewReaderSize(r, 64*1024)
	}
	return &Protocol{
		reader:          reader,
		writer:          w,
		pending:         make(map[int64]chan response),
		requestHandlers: make(map[string]RequestHandler),
		notifHandlers:   make(map[string]NotificationHandler),
		requestTimeout:  requestTimeout,
		done:            make(chan struct{}),
		language:        language,
	}
}

// SendRequest sends a request and blocks until the response arrives, the
// context is cancelled, or the timeout expires.
//
// Outputs:
//
//	json.RawMessage - The raw result member of the response
//	error - ErrTransportClosed, ErrServerCrashed, ErrRequestTimeout, a
//	        *ProtocolError for well-formed server errors, or a context error
//
// A timeout or cancellation sends a best-effort $/cancelRequest for the
// in-flight id; the server's eventual answer, if any, is discarded.
func (p *Protocol) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if p.closed.Load() {
		return nil, p.closeError()
	}

	ctx, span := startRequestSpan(ctx, method, p.language)
	defer span.End()
	start := time.Now()

	id := p.nextID.Add(1)
	ch := make(chan response, 1)

	p.pendingMu.Lock()
	p.pending[id] = ch
	p.pendingMu.Unlock()

	defer func() {
		p.pendingMu.Lock()
		delete(p.pending, id)
		p.pendingMu.Unlock()
	}()

	if err := p.writeMessage(request{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	}); err != nil {
		return nil, fmt.Errorf("write request %s: %w", method, err)
	}

	var timeout <-chan time.Time
	if p.requestTimeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			timer := time.NewTimer(p.requestTimeout)
			defer timer.Stop()
			timeout = timer.C
		}
	}

	select {
	case <-ctx.Done():
		p.cancelInFlight(id)
		recordRequestMetrics(context.Background(), method, p.language, time.Since(start), false)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrRequestTimeout, method)
		}
		return nil, ctx.Err()
	case <-timeout:
		p.cancelInFlight(id)
		recordRequestMetrics(context.Background(), method, p.language, time.Since(start), false)
		return nil, fmt.Errorf("%w: %s after %s", ErrRequestTimeout, method, p.requestTimeout)
	case <-p.done:
		recordRequestMetrics(context.Background(), method, p.language, time.Since(start), false)
		return nil, p.closeError()
	case resp := <-ch:
		recordRequestMetrics(ctx, method, p.language, time.Since(start), resp.Error == nil)
		if resp.Error != nil {
			return nil, &ProtocolError{
				Code:    resp.Error.Code,
				Message: resp.Error.Message,
				Data:    resp.Error.Data,
			}
		}
		return resp.Result, nil
	}
}

// SendNotification sends a notification. No response is expected.
func (p *Protocol) SendNotification(method string, params any) error {
	if p.closed.Load() {
		return p.closeError()
	}
	return p.writeMessage(request{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  params,
	})
}

// OnRequest registers the handler for server-initiated requests with the
// given method. Handlers run on the reader goroutine.
func (p *Protocol) OnRequest(method string, h RequestHandler) {
	p.handlersMu.Lock()
	p.requestHandlers[method] = h
	p.handlersMu.Unlock()
}

// OnNotification registers the handler for server-initiated notifications
// with the given method. Handlers run on the reader goroutine.
func (p *Protocol) OnNotification(method string, h NotificationHandler) {
	p.handlersMu.Lock()
	p.notifHandlers[method] = h
	p.handlersMu.Unlock()
}

// cancelInFlight sends $/cancelRequest for an abandoned request.
func (p *Protocol) cancelInFlight(id int64) {
	if p.closed.Load() {
		return
	}
	_ = p.writeMessage(request{
		JSONRPC: JSONRPCVersion,
		Method:  MethodCancelRequest,
		Params:  CancelParams{ID: id},
	})
}

// writeMessage marshals and writes a message with a Content-Length header.
func (p *Protocol) writeMessage(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))
	if _, err := io.WriteString(p.writer, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := p.writer.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// =============================================================================
// READ LOOP
// =============================================================================

// ReadLoop reads messages from the server until the stream fails or ctx is
// cancelled, dispatching responses to waiters and requests/notifications to
// handlers. It closes the protocol on exit; an EOF outside of shutdown is
// reported as ErrServerCrashed. Run in its own goroutine.
func (p *Protocol) ReadLoop(ctx context.Context) error {
	if p.reader == nil {
		return fmt.Errorf("no reader configured")
	}

	for {
		select {
		case <-ctx.Done():
			p.CloseWithError(ErrTransportClosed)
			return ctx.Err()
		case <-p.done:
			return nil
		default:
		}

		msg, err := p.readMessage()
		if err != nil {
			if p.closed.Load() {
				return nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
				p.CloseWithError(ErrServerCrashed)
				return ErrServerCrashed
			}
			err = fmt.Errorf("%w: read: %v", ErrServerCrashed, err)
			p.CloseWithError(err)
			return err
		}

		p.dispatch(msg)
	}
}

// readMessage reads one Content-Length framed message.
func (p *Protocol) readMessage() (json.RawMessage, error) {
	var contentLength int

	for {
		line, err := p.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)

		// Empty line marks the end of headers.
		if line == "" {
			break
		}

		if strings.HasPrefix(strings.ToLower(line), "content-length:") {
			parts := strings.SplitN(line, ":", 2)
			n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid Content-Length %q: %w", parts[1], err)
			}
			if n < 0 {
				return nil, fmt.Errorf("negative Content-Length: %d", n)
			}
			contentLength = n
		}
		// Content-Type and other headers are ignored.
	}

	if contentLength == 0 {
		return nil, fmt.Errorf("missing or zero Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(p.reader, body); err != nil {
		return nil, err
	}
	return body, nil
}

// dispatch determines whether a payload is a response, a server request, or
// a notification, and routes it accordingly.
func (p *Protocol) dispatch(data json.RawMessage) {
	var probe struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
		Result json.RawMessage `json:"result"`
		Error  *ResponseError  `json:"error"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		slog.Warn("Discarding malformed message from language server",
			slog.String("language", p.language),
			slog.String("error", err.Error()),
		)
		return
	}

	switch {
	case probe.Method != "" && len(probe.ID) > 0:
		p.handleServerRequest(probe.ID, probe.Method, data)
	case probe.Method != "":
		p.handleNotification(probe.Method, data)
	case len(probe.ID) > 0:
		p.handleResponse(data)
	default:
		slog.Warn("Discarding message with neither method nor id",
			slog.String("language", p.language),
		)
	}
}

// handleResponse delivers a response to its waiter, discarding stale ids.
func (p *Protocol) handleResponse(data json.RawMessage) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		slog.Warn("Discarding unparseable response", slog.String("language", p.language))
		return
	}

	p.pendingMu.Lock()
	ch, ok := p.pending[resp.ID]
	if ok {
		delete(p.pending, resp.ID)
	}
	p.pendingMu.Unlock()

	if !ok {
		// Stale id, typically a late answer outliving a restart or a
		// cancelled request.
		slog.Warn("Discarding response for unknown request id",
			slog.String("language", p.language),
			slog.Int64("id", resp.ID),
		)
		return
	}

	select {
	case ch <- resp:
	default:
	}
}

// handleServerRequest answers a server-initiated request via the registered
// handler, or with MethodNotFound.
func (p *Protocol) handleServerRequest(id json.RawMessage, method string, data json.RawMessage) {
	var req struct {
		Params json.RawMessage `json:"params"`
	}
	_ = json.Unmarshal(data, &req)

	p.handlersMu.RLock()
	handler, ok := p.requestHandlers[method]
	p.handlersMu.RUnlock()

	if !ok {
		_ = p.writeMessage(outboundResponse{
			JSONRPC: JSONRPCVersion,
			ID:      id,
			Error: &ResponseError{
				Code:    CodeMethodNotFound,
				Message: fmt.Sprintf("method %q not handled on client", method),
			},
		})
		return
	}

	result, respErr := handler(req.Params)
	if respErr != nil {
		_ = p.writeMessage(outboundResponse{
			JSONRPC: JSONRPCVersion,
			ID:      id,
			Error:   respErr,
		})
		return
	}

	raw := json.RawMessage("null")
	if result != nil {
		if data, err := json.Marshal(result); err == nil {
			raw = data
		}
	}
	_ = p.writeMessage(outboundResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  raw,
	})
}

// handleNotification routes a notification to its handler, if any.
func (p *Protocol) handleNotification(method string, data json.RawMessage) {
	var notif struct {
		Params json.RawMessage `json:"params"`
	}
	_ = json.Unmarshal(data, &notif)

	p.handlersMu.RLock()
	handler, ok := p.notifHandlers[method]
	p.handlersMu.RUnlock()

	if !ok {
		slog.Debug("Unhandled notification from language server",
			slog.String("language", p.language),
			slog.String("method", method),
		)
		return
	}
	handler(notif.Params)
}

// =============================================================================
// SHUTDOWN
// =============================================================================

// Close marks the protocol as closed for an orderly shutdown. Pending
// requests fail with ErrTransportClosed.
func (p *Protocol) Close() {
	p.CloseWithError(ErrTransportClosed)
}

// CloseWithError closes the protocol recording cause as the failure all
// pending and future requests observe. Idempotent; the first cause wins.
func (p *Protocol) CloseWithError(cause error) {
	if p.closed.Swap(true) {
		return
	}

	p.closeMu.Lock()
	p.closeErr = cause
	p.closeMu.Unlock()
	close(p.done)

	p.pendingMu.Lock()
	n := len(p.pending)
	p.pending = make(map[int64]chan response)
	p.pendingMu.Unlock()

	if n > 0 {
		slog.Info("Cancelling pending language server requests",
			slog.String("language", p.language),
			slog.Int("count", n),
		)
	}
}

// Closed reports whether the protocol has been closed.
func (p *Protocol) Closed() bool {
	return p.closed.Load()
}

// closeError returns the recorded close cause.
func (p *Protocol) closeError() error {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closeErr != nil {
		return p.closeErr
	}
	return ErrTransportClosed
}
