package browser

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/chromedp/chromedp"
)

// DefaultAcceptLanguage matches the stealth script's navigator.languages.
const DefaultAcceptLanguage = "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7"

// userAgents is the pool a session picks from when no user agent is configured.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// windowSizes are common desktop resolutions.
var windowSizes = [][2]int{
	{1920, 1080},
	{1366, 768},
	{1536, 864},
	{1440, 900},
}

// BlockedURLPatterns keeps video, audio, animations and web fonts from loading.
var BlockedURLPatterns = []string{
	"*.mp4", "*.webm", "*.ogg", "*.avi", "*.mov", "*.wmv", "*.flv", "*.mkv", "*.m4v",
	"*.mpg", "*.mpeg", "*.3gp", "*.swf",
	"*.flac", "*.wav", "*.mp3", "*.aac", "*.m4a",
	"*.gif", "*.webp", "*.apng", "*.mng",
	"*.woff2", "*.ttf", "*.otf",
}

// stealthScript runs before any page script on every document.
const stealthScript = `(() => {
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
	window.chrome = window.chrome || {};
	window.chrome.runtime = window.chrome.runtime || {};
	const originalQuery = window.navigator.permissions && window.navigator.permissions.query;
	if (originalQuery) {
		window.navigator.permissions.query = (parameters) => (
			parameters.name === 'notifications'
				? Promise.resolve({ state: Notification.permission })
				: originalQuery(parameters)
		);
	}
	Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
	Object.defineProperty(navigator, 'languages', { get: () => ['ru-RU', 'ru', 'en-US', 'en'] });
	Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => 8 });
	Object.defineProperty(navigator, 'deviceMemory', { get: () => 8 });
})();`

// StealthOptions configures the browser fingerprint of a session.
type StealthOptions struct {
	Headless bool
	// UserAgent is picked from a built-in pool when empty.
	UserAgent string
	// WindowWidth and WindowHeight are picked from a built-in pool when zero.
	WindowWidth  int
	WindowHeight int
	// BlockImages disables image loading in addition to the blocked media patterns.
	BlockImages    bool
	AcceptLanguage string
	// ExecPath overrides the Chrome binary.
	ExecPath string
}

// DefaultStealthOptions returns headless options with randomized fingerprint fields.
func DefaultStealthOptions() StealthOptions {
	return StealthOptions{Headless: true, AcceptLanguage: DefaultAcceptLanguage}
}

// ParseWindowSize parses "1920x1080" or "1920,1080".
func ParseWindowSize(s string) (width, height int, err error) {
	s = strings.TrimSpace(strings.ToLower(s))
	sep := "x"
	if strings.Contains(s, ",") {
		sep = ","
	}
	w, h, ok := strings.Cut(s, sep)
	if !ok {
		return 0, 0, fmt.Errorf("invalid window size %q", s)
	}
	if width, err = strconv.Atoi(strings.TrimSpace(w)); err != nil {
		return 0, 0, fmt.Errorf("invalid window width %q: %w", w, err)
	}
	if height, err = strconv.Atoi(strings.TrimSpace(h)); err != nil {
		return 0, 0, fmt.Errorf("invalid window height %q: %w", h, err)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("invalid window size %q", s)
	}
	return width, height, nil
}

// resolve fills the randomized fields.
func (o StealthOptions) resolve(rnd *rand.Rand) StealthOptions {
	if o.UserAgent == "" {
		o.UserAgent = userAgents[rnd.IntN(len(userAgents))]
	}
	if o.WindowWidth <= 0 || o.WindowHeight <= 0 {
		size := windowSizes[rnd.IntN(len(windowSizes))]
		o.WindowWidth, o.WindowHeight = size[0], size[1]
	}
	if o.AcceptLanguage == "" {
		o.AcceptLanguage = DefaultAcceptLanguage
	}
	return o
}

// allocatorOptions translates resolved options into Chrome flags.
func (o StealthOptions) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("autoplay-policy", "user-gesture-required"),
		chromedp.Flag("lang", "ru-RU"),
		chromedp.UserAgent(o.UserAgent),
		chromedp.WindowSize(o.WindowWidth, o.WindowHeight),
	)
	if o.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false), chromedp.Flag("hide-scrollbars", false))
	}
	if o.BlockImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	return opts
}
