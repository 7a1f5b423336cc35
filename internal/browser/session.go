// Package browser wraps chromedp for the e2e suite: worker-tagged browser
// contexts, readiness-signal waits, network-response pairing for
// state-changing clicks, and failure artifacts (screenshots, HTML dumps,
// console logs).
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/zerg-ai/jarvis-e2e/internal/config"
	"github.com/zerg-ai/jarvis-e2e/internal/poll"
	"github.com/zerg-ai/jarvis-e2e/internal/util"
	"github.com/zerg-ai/jarvis-e2e/internal/worker"
)

// ReadySelector is the application's readiness marker. Navigation helpers
// wait for it instead of sleeping.
const ReadySelector = `[data-ready="true"]`

// Logf is the logging callback the session reports through.
type Logf func(format string, args ...any)

// Session is one worker-tagged browser context.
type Session struct {
	cfg      config.Config
	workerID string
	logf     Logf

	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc

	scenario string
}

// NewSession launches a browser context tagged with the worker identifier:
// the isolation header rides on every HTTP request via the network domain,
// and an injected script rewrites WebSocket upgrade URLs. The context
// carries the configured scenario deadline.
func NewSession(parent context.Context, cfg config.Config, scenario string, logf Logf) (*Session, error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	s := &Session{
		cfg:      cfg,
		workerID: worker.ID(),
		logf:     logf,
		scenario: scenario,
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
	)
	s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(parent, opts...)
	s.ctx, s.cancel = chromedp.NewContext(s.allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logf("[browser] "+format, args...)
		}),
	)
	s.ctx, s.cancel = context.WithTimeout(s.ctx, cfg.ScenarioTimeout)

	rewrite := workerRewriteScript(s.workerID)
	err := chromedp.Run(s.ctx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{worker.Header: s.workerID}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(rewrite).Do(ctx)
			return err
		}),
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("initialize browser session: %w", err)
	}

	s.logf("browser session ready (worker=%s headless=%v)", s.workerID, cfg.Headless)
	return s, nil
}

// Close tears the browser context down.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}

// Ctx exposes the session context for raw chromedp actions.
func (s *Session) Ctx() context.Context { return s.ctx }

// WorkerID returns the identifier this session is tagged with.
func (s *Session) WorkerID() string { return s.workerID }

// CaptureConsole streams browser console messages into the session log.
func (s *Session) CaptureConsole() {
	chromedp.ListenTarget(s.ctx, func(ev any) {
		if msg, ok := ev.(*runtime.EventConsoleAPICalled); ok {
			var args []string
			for _, arg := range msg.Args {
				if arg.Value != nil {
					args = append(args, string(arg.Value))
				}
			}
			s.logf("[console:%s] %s", msg.Type, strings.Join(args, " "))
		}
	})
}

// Navigate opens path under the web base URL and waits for the app's
// readiness marker.
func (s *Session) Navigate(path string) error {
	url := s.cfg.WebURL + path
	s.logf("navigate %s", url)

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.NavTimeout)
	defer cancel()

	start := time.Now()
	err := chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.WaitVisible(ReadySelector, chromedp.ByQuery),
	)
	if err != nil {
		s.Screenshot("nav-error")
		s.DumpHTML("nav-error")
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	s.logf("navigate %s done in %v", url, time.Since(start).Round(time.Millisecond))
	return nil
}

// WaitVisible waits for selector within the action timeout.
func (s *Session) WaitVisible(selector string) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.ActionTimeout)
	defer cancel()
	if err := chromedp.Run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		s.Screenshot("wait-error")
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

// Click clicks a visible element.
func (s *Session) Click(selector string) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.ActionTimeout)
	defer cancel()
	err := chromedp.Run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

// TypeText clears an input and types text into it.
func (s *Session) TypeText(selector, text string) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.ActionTimeout)
	defer cancel()
	err := chromedp.Run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("type into %q: %w", selector, err)
	}
	return nil
}

// Text returns the trimmed text content of an element.
func (s *Session) Text(selector string) (string, error) {
	var text string
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.ActionTimeout)
	defer cancel()
	err := chromedp.Run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Text(selector, &text, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("text of %q: %w", selector, err)
	}
	return strings.TrimSpace(text), nil
}

// Count returns how many elements match selector right now.
func (s *Session) Count(selector string) (int, error) {
	var count int
	if err := chromedp.Run(s.ctx, chromedp.Evaluate(countExpr(selector), &count)); err != nil {
		return 0, fmt.Errorf("count %q: %w", selector, err)
	}
	return count, nil
}

// PollCount waits until the number of elements matching selector satisfies
// ok, polling instead of sleeping.
func (s *Session) PollCount(selector string, timeout time.Duration, ok func(int) bool) error {
	return poll.UntilTimeout(s.ctx, timeout, 200*time.Millisecond,
		fmt.Sprintf("element count for %q", selector),
		func(ctx context.Context) (bool, error) {
			n, err := s.Count(selector)
			if err != nil {
				return false, err
			}
			return ok(n), nil
		})
}

// PollText waits until the element's text satisfies ok.
func (s *Session) PollText(selector string, timeout time.Duration, ok func(string) bool) error {
	return poll.UntilTimeout(s.ctx, timeout, 200*time.Millisecond,
		fmt.Sprintf("text of %q", selector),
		func(ctx context.Context) (bool, error) {
			text, err := s.Text(selector)
			if err != nil {
				return false, err
			}
			return ok(text), nil
		})
}

// ResponseMatch describes the network response a state-changing action is
// expected to trigger.
type ResponseMatch struct {
	Method    string // empty matches any method
	URLSubstr string
	Status    int64 // 0 matches any status
}

func (m ResponseMatch) String() string {
	method := m.Method
	if method == "" {
		method = "*"
	}
	if m.Status == 0 {
		return fmt.Sprintf("%s *%s*", method, m.URLSubstr)
	}
	return fmt.Sprintf("%s *%s* -> %d", method, m.URLSubstr, m.Status)
}

// matches reports whether a completed response fits the expectation.
func (m ResponseMatch) matches(method, url string, status int64) bool {
	if m.Method != "" && !strings.EqualFold(m.Method, method) {
		return false
	}
	if !strings.Contains(url, m.URLSubstr) {
		return false
	}
	return m.Status == 0 || m.Status == status
}

// ClickAndWaitResponse arms a listener for the matching network response
// and then clicks, so the response cannot slip through between the action
// and the wait. This is the suite-wide replacement for click-then-sleep.
func (s *Session) ClickAndWaitResponse(selector string, match ResponseMatch, timeout time.Duration) error {
	return s.doAndWaitResponse(func() error { return s.Click(selector) }, match, timeout)
}

// DoAndWaitResponse runs an arbitrary action with the same armed-listener
// semantics.
func (s *Session) DoAndWaitResponse(action func() error, match ResponseMatch, timeout time.Duration) error {
	return s.doAndWaitResponse(action, match, timeout)
}

func (s *Session) doAndWaitResponse(action func() error, match ResponseMatch, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	got := make(chan struct{})
	methods := make(map[network.RequestID]string)
	var once bool

	lctx, lcancel := context.WithCancel(ctx)
	defer lcancel()
	chromedp.ListenTarget(lctx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			methods[e.RequestID] = e.Request.Method
		case *network.EventResponseReceived:
			if once {
				return
			}
			method := methods[e.RequestID]
			if match.matches(method, e.Response.URL, e.Response.Status) {
				once = true
				close(got)
			}
		}
	})

	if err := action(); err != nil {
		return err
	}

	select {
	case <-got:
		return nil
	case <-ctx.Done():
		s.Screenshot("response-timeout")
		return fmt.Errorf("timed out waiting for response %s", match)
	}
}

// HasEventBus reports whether the dev event bus hook is mounted.
func (s *Session) HasEventBus() (bool, error) {
	var present bool
	if err := chromedp.Run(s.ctx, chromedp.Evaluate(hasEventBusExpr(), &present)); err != nil {
		return false, fmt.Errorf("probe event bus: %w", err)
	}
	return present, nil
}

// WaitEventBus polls for the dev event bus as a readiness signal. Only dev
// builds mount it; tests that need it skip when this times out.
func (s *Session) WaitEventBus(timeout time.Duration) error {
	return poll.UntilTimeout(s.ctx, timeout, 100*time.Millisecond, "dev event bus hook",
		func(context.Context) (bool, error) { return s.HasEventBus() })
}

// EmitEvent synthetically emits an event on the dev bus, driving the UI
// without a backend round trip.
func (s *Session) EmitEvent(event string, payload any) error {
	expr, err := emitEventExpr(event, payload)
	if err != nil {
		return err
	}
	var emitted bool
	if err := chromedp.Run(s.ctx, chromedp.Evaluate(expr, &emitted)); err != nil {
		return fmt.Errorf("emit %q: %w", event, err)
	}
	if !emitted {
		return fmt.Errorf("emit %q: no dev event bus mounted (production build?)", event)
	}
	return nil
}

// DragAndDrop dispatches a synthesized drag sequence between two elements.
func (s *Session) DragAndDrop(source, target string) error {
	var okDrag bool
	if err := chromedp.Run(s.ctx, chromedp.Evaluate(dragAndDropScript(source, target), &okDrag)); err != nil {
		return fmt.Errorf("drag %q -> %q: %w", source, target, err)
	}
	if !okDrag {
		return fmt.Errorf("drag %q -> %q: element not found", source, target)
	}
	return nil
}

// Screenshot writes a full-viewport capture into the artifact directory.
// Failures are logged, not returned: artifact capture must never mask the
// assertion that triggered it.
func (s *Session) Screenshot(name string) {
	var buf []byte
	if err := chromedp.Run(s.ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		s.logf("screenshot %s failed: %v", name, err)
		return
	}
	path := s.artifactPath(name + ".png")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		s.logf("screenshot %s write failed: %v", name, err)
		return
	}
	s.logf("screenshot saved: %s", path)
}

// DumpHTML writes the current DOM into the artifact directory.
func (s *Session) DumpHTML(name string) {
	var html string
	if err := chromedp.Run(s.ctx, chromedp.OuterHTML("html", &html)); err != nil {
		s.logf("html dump %s failed: %v", name, err)
		return
	}
	path := s.artifactPath(name + ".html")
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		s.logf("html dump %s write failed: %v", name, err)
		return
	}
	s.logf("html saved: %s", path)
}

func (s *Session) artifactPath(file string) string {
	path, err := util.ArtifactPath(s.cfg.ArtifactDir, fmt.Sprintf("%s-%s", s.scenario, file))
	if err != nil {
		s.logf("artifact dir %s: %v", s.cfg.ArtifactDir, err)
		return filepath.Join(s.cfg.ArtifactDir, fmt.Sprintf("%s-%s", s.scenario, file))
	}
	return path
}
