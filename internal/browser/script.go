package browser

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/zerg-ai/jarvis-e2e/internal/worker"
)

// workerRewriteScript wraps the page's WebSocket constructor so every
// upgrade URL carries the worker_id query parameter. Injected before any
// document script runs, matching the backend's expectation that both HTTP
// and WebSocket traffic are tagged.
func workerRewriteScript(workerID string) string {
	id, _ := json.Marshal(workerID)
	param, _ := json.Marshal(worker.QueryParam)
	return fmt.Sprintf(`(() => {
	const NativeWebSocket = window.WebSocket;
	const workerId = %s;
	const param = %s;
	window.WebSocket = function(url, protocols) {
		try {
			const u = new URL(url, window.location.href);
			u.searchParams.set(param, workerId);
			url = u.toString();
		} catch (e) {
			// Leave malformed URLs for the native constructor to reject.
		}
		return protocols === undefined
			? new NativeWebSocket(url)
			: new NativeWebSocket(url, protocols);
	};
	window.WebSocket.prototype = NativeWebSocket.prototype;
	window.WebSocket.CONNECTING = NativeWebSocket.CONNECTING;
	window.WebSocket.OPEN = NativeWebSocket.OPEN;
	window.WebSocket.CLOSING = NativeWebSocket.CLOSING;
	window.WebSocket.CLOSED = NativeWebSocket.CLOSED;
})();`, id, param)
}

// eventBusNames are the dev-build hooks, newest first. Older builds expose
// the bus under the legacy application name.
var eventBusNames = []string{"__jarvis", "__oikos"}

// hasEventBusExpr evaluates to true when any dev event bus hook is present.
func hasEventBusExpr() string {
	var checks []string
	for _, name := range eventBusNames {
		checks = append(checks, fmt.Sprintf("(window.%s && window.%s.eventBus)", name, name))
	}
	return "!!(" + strings.Join(checks, " || ") + ")"
}

// emitEventExpr builds the expression that synthetically emits an event on
// the dev bus. Returns false when no bus is mounted so callers can fail
// with a useful message instead of a ReferenceError.
func emitEventExpr(event string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode event payload: %w", err)
	}
	name, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	var emits []string
	for _, bus := range eventBusNames {
		emits = append(emits, fmt.Sprintf(
			"if (window.%s && window.%s.eventBus) { window.%s.eventBus.emit(%s, %s); return true; }",
			bus, bus, bus, name, data))
	}
	return fmt.Sprintf("(() => { %s return false; })()", strings.Join(emits, " ")), nil
}

// dragAndDropScript synthesizes the DragEvent sequence between two
// selectors. Canvas drag handlers listen for dragstart/dragover/drop, which
// native mouse simulation does not reliably trigger headless.
func dragAndDropScript(source, target string) string {
	src, _ := json.Marshal(source)
	tgt, _ := json.Marshal(target)
	return fmt.Sprintf(`(() => {
	const source = document.querySelector(%s);
	const target = document.querySelector(%s);
	if (!source || !target) return false;
	const dt = new DataTransfer();
	for (const type of ['dragstart', 'dragover', 'drop', 'dragend']) {
		const el = (type === 'dragstart' || type === 'dragend') ? source : target;
		el.dispatchEvent(new DragEvent(type, {bubbles: true, cancelable: true, dataTransfer: dt}));
	}
	return true;
})();`, src, tgt)
}

// countExpr evaluates to the number of elements matching selector.
func countExpr(selector string) string {
	sel, _ := json.Marshal(selector)
	return fmt.Sprintf("document.querySelectorAll(%s).length", sel)
}
