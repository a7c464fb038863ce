package htmlshot

import (
	"encoding/json"
	"fmt"
)

// Readiness tuning, all in milliseconds. The quiet window is the trailing
// no-mutation span required before the page counts as settled; the warm-up
// floor keeps a page from being declared stable before its inline scripts
// have had any chance to mutate the DOM.
const (
	stabilityTimeoutMs = 15000
	quietWindowMs      = 200
	warmupFloorMs      = 150
	pollIntervalMs     = 100
)

// stabilityScript returns the injected expression that writes html into the
// document and resolves once the page is visually stable. Stages are
// re-polled rather than event-driven because any stage can regress, e.g. a
// stylesheet appended late by a script. The promise rejects if any stage
// outlives the overall timeout.
func stabilityScript(html string) (string, error) {
	quoted, err := json.Marshal(html)
	if err != nil {
		return "", fmt.Errorf("encode markup: %w", err)
	}

	return fmt.Sprintf(`
	(async () => {
		const TOTAL_TIMEOUT = %d;
		const QUIET_WINDOW = %d;
		const WARMUP_FLOOR = %d;
		const POLL_INTERVAL = %d;

		document.open();
		document.write(%s);
		document.close();

		const startTime = Date.now();

		await new Promise((resolve, reject) => {
			let observer = null;

			const fail = (msg) => {
				if (observer) observer.disconnect();
				reject(new Error(msg));
			};

			const finish = () => {
				if (observer) observer.disconnect();
				// Two chained frames let the rendering pipeline flush the
				// final paint before we signal done.
				requestAnimationFrame(() => requestAnimationFrame(resolve));
			};

			const checkResources = async () => {
				if (Date.now() - startTime > TOTAL_TIMEOUT) {
					fail('timeout waiting for page resources');
					return;
				}
				if (document.readyState !== 'complete') {
					setTimeout(checkResources, POLL_INTERVAL);
					return;
				}
				await document.fonts.ready;

				const resources = [
					...document.querySelectorAll('link[rel="stylesheet"]'),
					...document.images
				];
				const pending = resources.filter((el) => {
					if (el.tagName === 'LINK') return !el.sheet;
					if (el.tagName === 'IMG') return !el.complete;
					return false;
				});
				if (pending.length > 0) {
					setTimeout(checkResources, POLL_INTERVAL);
					return;
				}

				startQuiescence();
			};

			const startQuiescence = () => {
				if (observer) return;

				const observeStart = Date.now();
				let lastMutation = observeStart;

				observer = new MutationObserver(() => {
					lastMutation = Date.now();
				});
				observer.observe(document.documentElement, {
					childList: true,
					subtree: true,
					attributes: true,
					characterData: true
				});

				const checkQuiet = () => {
					const now = Date.now();
					if (now - startTime > TOTAL_TIMEOUT) {
						fail('timeout waiting for page stability');
						return;
					}
					if (now - observeStart >= WARMUP_FLOOR && now - lastMutation >= QUIET_WINDOW) {
						finish();
						return;
					}
					setTimeout(checkQuiet, POLL_INTERVAL);
				};
				checkQuiet();
			};

			checkResources();
		});

		return 'stable';
	})()`, stabilityTimeoutMs, quietWindowMs, warmupFloorMs, pollIntervalMs, quoted), nil
}
