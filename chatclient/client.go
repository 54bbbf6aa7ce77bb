// Package chatclient performs the single request/response exchange behind a
// user turn: POST {baseURL}/chat with the query and retrieval parameters,
// decode the answer and its sources, and classify failures.
package chatclient

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/karthikraju391/rag-chat-client/config"
	"github.com/karthikraju391/rag-chat-client/models"
	"github.com/karthikraju391/rag-chat-client/transport"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *fasthttp.Client
	Logger     *zap.Logger
}

// Client sends chat queries. It is safe for concurrent use, although
// callers are expected to check IsSending and keep one turn in flight.
type Client struct {
	baseURL  string
	chatURL  string
	timeout  time.Duration
	http     *fasthttp.Client
	log      *zap.Logger
	inflight atomic.Int32
}

// Response is a decoded answer. Sources is never nil.
type Response struct {
	Answer  string
	Sources []models.Source
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = config.DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = config.DefaultChatTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = transport.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		baseURL: opts.BaseURL,
		chatURL: transport.Endpoint(opts.BaseURL, "/chat"),
		timeout: opts.Timeout,
		http:    opts.HTTPClient,
		log:     opts.Logger.Named("chatclient"),
	}
}

// BaseURL returns the service root this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// IsSending reports whether a Send is outstanding.
func (c *Client) IsSending() bool { return c.inflight.Load() > 0 }

// Send issues exactly one POST /chat. The query is sent as given; callers
// must not pass a blank query. include_relationships and debug are fixed.
//
// The timeout is the only cancellation path. When it fires Send returns
// immediately and whatever the server sends later is discarded.
func (c *Client) Send(query string, topK int, minSimilarity float64) (*Response, error) {
	c.inflight.Add(1)
	defer c.inflight.Add(-1)

	start := time.Now()
	resp, err := c.send(query, topK, minSimilarity)
	elapsed := time.Since(start)

	requestDuration.Observe(elapsed.Seconds())
	if err != nil {
		kind := KindOf(err)
		requestsTotal.WithLabelValues(string(kind)).Inc()
		c.log.Warn("chat request failed",
			zap.String("kind", string(kind)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, err
	}
	requestsTotal.WithLabelValues("ok").Inc()
	c.log.Debug("chat request finished",
		zap.Int("sources", len(resp.Sources)),
		zap.Duration("elapsed", elapsed))
	return resp, nil
}

func (c *Client) send(query string, topK int, minSimilarity float64) (*Response, error) {
	body, err := json.Marshal(models.ChatRequest{
		Query:                query,
		TopK:                 topK,
		IncludeRelationships: true,
		MinSimilarity:        minSimilarity,
		Debug:                false,
	})
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Message: MsgUnknown, Err: fmt.Errorf("failed to marshal chat request: %w", err)}
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.chatURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	req.SetBodyRaw(body)

	if err := c.http.DoTimeout(req, resp, c.timeout); err != nil {
		return nil, classifyTransport(err)
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		return nil, serverError(status, resp.Body())
	}

	var out models.ChatResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, &Error{Kind: KindUnknown, Message: MsgUnknown, Err: fmt.Errorf("failed to decode chat response: %w", err)}
	}
	if out.Sources == nil {
		out.Sources = []models.Source{}
	}
	return &Response{Answer: out.Answer, Sources: out.Sources}, nil
}
