// Package gafscrape fetches contractor listings and profiles from the GAF
// residential contractor directory. The pages render card content with
// JavaScript, so both fetchers drive a headless Chrome via chromedp.
package gafscrape

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/contractor-intel/internal/config"
	"github.com/sells-group/contractor-intel/internal/model"
	"github.com/sells-group/contractor-intel/internal/resilience"
)

// maxCertifications caps how many certification badges are read off a
// profile page.
const maxCertifications = 5

// Scraper implements the refresh engine's listing and profile fetchers
// against the GAF directory.
type Scraper struct {
	cfg     config.ScrapeConfig
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// New creates a Scraper from configuration. Requests are rate limited across
// both listing pagination and profile visits.
func New(cfg config.ScrapeConfig) *Scraper {
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 0.5
	}
	retry := resilience.DefaultRetryConfig()
	if cfg.Retries > 0 {
		retry.MaxAttempts = cfg.Retries + 1
	}
	retry.OnRetry = resilience.RetryLogger("gaf", "fetch")
	return &Scraper{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		retry:   retry,
	}
}

// listingCard mirrors the JSON extracted per contractor card in the browser.
type listingCard struct {
	Name      string `json:"name"`
	Rating    string `json:"rating"`
	Reviews   string `json:"reviews"`
	Location  string `json:"location"`
	PhoneHref string `json:"phone_href"`
	URL       string `json:"url"`
}

// extractCardsJS pulls every contractor card off the current results page.
const extractCardsJS = `
(function() {
	var results = [];
	var cards = document.querySelectorAll('article.certification-card');
	for (var i = 0; i < cards.length; i++) {
		var card = cards[i];
		var nameEl = card.querySelector('h2.certification-card__heading a.link--inline span');
		var linkEl = card.querySelector('h2.certification-card__heading a.link--inline');
		var ratingEl = card.querySelector('.rating-stars__average');
		var reviewsEl = card.querySelector('.rating-stars__total');
		var cityEl = card.querySelector('p.certification-card__city');
		var phoneEl = card.querySelector('a.certification-card__phone');
		results.push({
			name:       nameEl ? nameEl.textContent.trim() : '',
			rating:     ratingEl ? ratingEl.textContent.trim() : '',
			reviews:    reviewsEl ? reviewsEl.textContent.trim() : '',
			location:   cityEl ? cityEl.textContent.trim() : '',
			phone_href: phoneEl ? (phoneEl.getAttribute('href') || '') : '',
			url:        linkEl ? (linkEl.getAttribute('href') || '') : ''
		});
	}
	return results;
})()
`

// clickNextPageJS advances pagination. Returns false when the next button is
// missing or disabled, i.e. the last page.
const clickNextPageJS = `
(function() {
	var next = document.querySelector("a[aria-label='Next page'], button[aria-label='Next page'], .pagination__next:not(.disabled)");
	if (!next) return false;
	if ((next.getAttribute('class') || '').indexOf('disabled') >= 0) return false;
	next.click();
	return true;
})()
`

// profileData mirrors the JSON extracted from a contractor profile page.
type profileData struct {
	Description    string   `json:"description"`
	Certifications []string `json:"certifications"`
}

// extractProfileJS reads the about text and certification badges, trying the
// description selectors in fallback order.
var extractProfileJS = `
(function() {
	var result = { description: '', certifications: [] };
	var descSelectors = [
		'.contractor-profile__about',
		'.about-section',
		"[class*='about']",
		"[class*='description']",
		'.rtf p',
		'section p'
	];
	for (var i = 0; i < descSelectors.length; i++) {
		var el = document.querySelector(descSelectors[i]);
		if (el) {
			var text = el.textContent.trim();
			if (text.length > 30) {
				result.description = text;
				break;
			}
		}
	}
	var badges = document.querySelectorAll(".certification-badge, [class*='certification'], [class*='badge']");
	for (var j = 0; j < badges.length && result.certifications.length < ` + fmt.Sprint(maxCertifications) + `; j++) {
		var badge = badges[j].textContent.trim();
		if (badge && badge.length < 100) {
			result.certifications.push(badge);
		}
	}
	return result;
})()
`

// FetchListings loads the search results for one zip/distance pair and walks
// the pagination, returning the lightweight snapshots. A repeated contractor
// name across pages means the site wrapped around, which stops pagination.
func (s *Scraper) FetchListings(ctx context.Context, params model.SearchParams) ([]model.Snapshot, error) {
	log := zap.L().With(zap.String("zip", params.ZipCode))

	distance := params.Distance
	if distance <= 0 {
		distance = s.cfg.DefaultDistance
	}
	searchURL := fmt.Sprintf("%s/en-us/roofing-contractors/residential?postalCode=%s&distance=%d",
		s.cfg.BaseURL, params.ZipCode, distance)

	var snapshots []model.Snapshot
	err := resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		browserCtx, cancel, err := s.newBrowserContext(ctx)
		if err != nil {
			return err
		}
		defer cancel()

		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := chromedp.Run(browserCtx,
			chromedp.Navigate(searchURL),
			chromedp.Sleep(5*time.Second),
			chromedp.WaitVisible("article.certification-card", chromedp.ByQuery),
		); err != nil {
			return resilience.NewTransientError(eris.Wrap(err, "gafscrape: load search results"), 0)
		}

		snapshots = snapshots[:0]
		seenNames := make(map[string]bool)
		maxPages := s.cfg.MaxPages
		if maxPages <= 0 {
			maxPages = 10
		}

		for page := 1; page <= maxPages; page++ {
			var cards []listingCard
			if err := chromedp.Run(browserCtx,
				chromedp.Sleep(3*time.Second),
				chromedp.Evaluate(extractCardsJS, &cards),
			); err != nil {
				return resilience.NewTransientError(eris.Wrapf(err, "gafscrape: extract page %d", page), 0)
			}
			log.Debug("listing page scraped", zap.Int("page", page), zap.Int("cards", len(cards)))

			for _, card := range cards {
				if params.MaxResults > 0 && len(snapshots) >= params.MaxResults {
					return nil
				}
				if card.Name == "" {
					continue
				}
				if seenNames[card.Name] {
					log.Debug("duplicate contractor, stopping pagination", zap.String("name", card.Name))
					return nil
				}
				seenNames[card.Name] = true
				snapshots = append(snapshots, s.cardToSnapshot(card))
			}

			var advanced bool
			if err := chromedp.Run(browserCtx, chromedp.Evaluate(clickNextPageJS, &advanced)); err != nil || !advanced {
				return nil
			}
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
			if err := chromedp.Run(browserCtx,
				chromedp.Sleep(5*time.Second),
				chromedp.WaitVisible("article.certification-card", chromedp.ByQuery),
			); err != nil {
				log.Warn("next page never loaded, stopping pagination", zap.Int("page", page+1), zap.Error(err))
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "gafscrape: fetch listings for %s", params.ZipCode)
	}

	log.Info("listings fetched", zap.Int("count", len(snapshots)))
	return snapshots, nil
}

// cardToSnapshot converts one extracted card into a snapshot value.
func (s *Scraper) cardToSnapshot(card listingCard) model.Snapshot {
	city, distance := parseLocation(card.Location)
	profileURL := absoluteURL(s.cfg.BaseURL, card.URL)
	return model.Snapshot{
		SourceID:   sourceIDFromURL(profileURL),
		Name:       card.Name,
		Phone:      parsePhone(card.PhoneHref),
		Location:   city,
		Distance:   distance,
		Rating:     parseRating(card.Rating),
		Reviews:    parseReviewCount(card.Reviews),
		ProfileURL: profileURL,
	}
}

// FetchProfile visits a contractor's full profile page and returns the
// snapshot enriched with description and certifications.
func (s *Scraper) FetchProfile(ctx context.Context, snap model.Snapshot) (model.Snapshot, error) {
	if snap.ProfileURL == "" {
		return snap, eris.New("gafscrape: snapshot has no profile url")
	}

	var data profileData
	err := resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		browserCtx, cancel, err := s.newBrowserContext(ctx)
		if err != nil {
			return err
		}
		defer cancel()

		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := chromedp.Run(browserCtx,
			chromedp.Navigate(snap.ProfileURL),
			chromedp.Sleep(3*time.Second),
			chromedp.Evaluate(extractProfileJS, &data),
		); err != nil {
			return resilience.NewTransientError(eris.Wrap(err, "gafscrape: load profile"), 0)
		}
		return nil
	})
	if err != nil {
		return snap, eris.Wrapf(err, "gafscrape: fetch profile %s", snap.ProfileURL)
	}

	enriched := snap
	if data.Description != "" {
		enriched.Description = &data.Description
	}
	enriched.Certifications = data.Certifications
	return enriched, nil
}

// newBrowserContext allocates a fresh headless Chrome tab with the page
// navigation timeout applied.
func (s *Scraper) newBrowserContext(ctx context.Context) (context.Context, context.CancelFunc, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if bin := s.chromeBinary(); bin != "" {
		opts = append(opts, chromedp.ExecPath(bin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	timeout := time.Duration(s.cfg.NavTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	timeoutCtx, cancelTimeout := context.WithTimeout(browserCtx, timeout)

	cancel := func() {
		cancelTimeout()
		cancelBrowser()
		cancelAlloc()
	}
	return timeoutCtx, cancel, nil
}

// chromeBinary locates the Chrome/Chromium binary, preferring the configured
// path, then CHROME_BIN, then well-known locations.
func (s *Scraper) chromeBinary() string {
	if s.cfg.ChromePath != "" {
		return s.cfg.ChromePath
	}
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
