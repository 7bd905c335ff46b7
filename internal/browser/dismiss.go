package browser

import "fmt"

// Keys reported by the dismiss hook.
const (
	KeyEscape = "Escape"
	KeyCtrlC  = "Ctrl+C"
)

const bindingName = "pikioskDismiss"

// dismissScript runs in every document of every surface and reports the
// quit keys through the runtime binding. Ctrl+C only counts without other
// modifiers.
var dismissScript = fmt.Sprintf(`(function () {
  if (window.__pikioskHooked) { return; }
  window.__pikioskHooked = true;
  window.addEventListener('keydown', function (e) {
    var ctrlC = e.ctrlKey && !e.altKey && !e.metaKey && !e.shiftKey &&
      (e.key === 'c' || e.key === 'C');
    if (e.key !== 'Escape' && !ctrlC) { return; }
    e.preventDefault();
    if (typeof window.%[1]s === 'function') {
      window.%[1]s(ctrlC ? %[2]q : %[3]q);
    }
  }, true);
})();`, bindingName, KeyCtrlC, KeyEscape)

// dismissKey validates a payload sent through the binding. Pages can call
// the binding themselves, so anything but the two known keys is ignored.
func dismissKey(payload string) (string, bool) {
	switch payload {
	case KeyEscape, KeyCtrlC:
		return payload, true
	default:
		return "", false
	}
}
