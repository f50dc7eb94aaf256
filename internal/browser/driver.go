// Package browser drives a single Chrome page for the bundled tool server.
// It produces accessibility-style snapshots in which every visible element is
// tagged with a stable ref that a later click can target.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"reviewharvest/internal/config"
)

// refAttribute marks snapshotted elements so clicks can find them again.
const refAttribute = "data-harvest-ref"

// refSelector builds the CSS selector matching an element tagged with ref.
func refSelector(ref string) string {
	return fmt.Sprintf("[%s=%q]", refAttribute, ref)
}

// snapshotJS walks the DOM, tags every visible interactive-or-textual element
// with a ref attribute and returns a JSON-friendly description of the page.
const snapshotJS = `
() => {
	const visible = (el) => {
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') return false;
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	};

	const label = (el) => {
		return (el.getAttribute('aria-label') ||
			el.getAttribute('alt') ||
			el.getAttribute('title') ||
			el.getAttribute('placeholder') ||
			'').trim();
	};

	const ownText = (el) => {
		let text = '';
		for (const node of el.childNodes) {
			if (node.nodeType === Node.TEXT_NODE) text += node.textContent;
		}
		return text.replace(/\s+/g, ' ').trim();
	};

	const nodes = [];
	let counter = 0;
	const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_ELEMENT);
	while (walker.nextNode()) {
		const el = walker.currentNode;
		if (['SCRIPT', 'STYLE', 'NOSCRIPT', 'META', 'LINK'].includes(el.tagName)) continue;
		if (!visible(el)) continue;

		const text = ownText(el);
		const aria = label(el);
		const role = el.getAttribute('role') || '';
		const interactive = ['A', 'BUTTON', 'INPUT', 'SELECT', 'TEXTAREA', 'OPTION'].includes(el.tagName) ||
			role !== '' || el.onclick !== null || el.getAttribute('tabindex') !== null;
		if (!interactive && text === '' && aria === '') continue;

		const ref = 'e' + (counter++);
		el.setAttribute('data-harvest-ref', ref);
		nodes.push({
			ref: ref,
			tag: el.tagName.toLowerCase(),
			role: role,
			label: aria,
			text: text,
		});
	}
	return { url: window.location.href, title: document.title, nodes: nodes };
}
`

// Driver owns one browser and one page. All methods are safe for concurrent
// use, though the tool server calls them sequentially.
type Driver struct {
	cfg config.BrowserConfig

	mu         sync.Mutex
	browser    *rod.Browser
	page       *rod.Page
	controlURL string
}

// NewDriver returns an unconnected driver; call Start before use.
func NewDriver(cfg config.BrowserConfig) *Driver {
	return &Driver{cfg: cfg}
}

// Start connects to an existing Chrome or launches a new one using Rod's launcher.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browser != nil {
		if _, err := d.browser.Version(); err == nil {
			return nil
		}
		log.Printf("Stale browser connection detected, reconnecting...")
		_ = d.browser.Close()
		d.browser = nil
		d.page = nil
		d.controlURL = ""
	}

	controlURL := d.cfg.DebuggerURL
	if controlURL == "" && len(d.cfg.Launch) > 0 {
		bin := d.cfg.Launch[0]
		launch := launcher.New().Bin(bin).Headless(d.cfg.IsHeadless())
		for _, rawFlag := range d.cfg.Launch[1:] {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		url, err := launch.Launch()
		if err != nil {
			// Fallback: let Rod pick the port and defaults.
			fallback := launcher.New().Bin(bin).Headless(d.cfg.IsHeadless())
			if alt, altErr := fallback.Launch(); altErr == nil {
				controlURL = alt
			} else {
				return fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
			}
		} else {
			controlURL = url
		}
	}

	if controlURL == "" {
		url, err := launcher.New().Headless(d.cfg.IsHeadless()).Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	d.browser = browser
	d.controlURL = controlURL
	log.Printf("Browser connected at %s", controlURL)
	return nil
}

// ControlURL returns the WebSocket debugger URL for the connected browser.
func (d *Driver) ControlURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.controlURL
}

// Navigate loads url in the driver's page, creating the page on first use.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browser == nil {
		return errors.New("browser not connected")
	}

	if d.page == nil {
		page, err := d.browser.Page(proto.TargetCreateTarget{})
		if err != nil {
			return fmt.Errorf("create page: %w", err)
		}
		if err := (proto.EmulationSetDeviceMetricsOverride{
			Width:             d.cfg.GetViewportWidth(),
			Height:            d.cfg.GetViewportHeight(),
			DeviceScaleFactor: 1.0,
			Mobile:            false,
		}).Call(page); err != nil {
			log.Printf("warning: failed to set viewport: %v", err)
		}
		d.page = page
	}

	if err := d.page.Context(ctx).Timeout(d.cfg.GetNavigationTimeout()).Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

// Click finds the element previously tagged with ref and clicks it.
func (d *Driver) Click(ctx context.Context, ref string) error {
	d.mu.Lock()
	page := d.page
	d.mu.Unlock()

	if page == nil {
		return errors.New("no page open; navigate first")
	}

	el, err := page.Context(ctx).Element(refSelector(ref))
	if err != nil {
		return fmt.Errorf("element %s not found: %w", ref, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", ref, err)
	}
	return nil
}

// Snapshot tags visible elements with refs and returns the page description
// as a JSON document.
func (d *Driver) Snapshot(ctx context.Context) (string, error) {
	d.mu.Lock()
	page := d.page
	d.mu.Unlock()

	if page == nil {
		return "", errors.New("no page open; navigate first")
	}

	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           snapshotJS,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return "", fmt.Errorf("snapshot page: %w", err)
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("serialize snapshot: %w", err)
	}
	return string(raw), nil
}

// Shutdown closes the page and the underlying browser.
func (d *Driver) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.page != nil {
		_ = d.page.Close()
		d.page = nil
	}

	var err error
	if d.browser != nil {
		err = d.browser.Close()
		d.browser = nil
	}
	d.controlURL = ""
	log.Printf("Browser shutdown complete")
	return err
}
