package export

import (
	"context"
	"fmt"
	"html/template"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const pdfTimeout = 30 * time.Second

// browserCandidates are looked up on PATH when CHROME_PATH is unset.
var browserCandidates = []string{"chromium-browser", "chromium", "google-chrome", "google-chrome-stable"}

// findBrowser resolves the browser binary used for printing. An explicit
// CHROME_PATH must resolve; it is never silently replaced by a PATH match.
func findBrowser(getenv func(string) string, lookPath func(string) (string, error)) (string, error) {
	if explicit := strings.TrimSpace(getenv("CHROME_PATH")); explicit != "" {
		resolved, err := lookPath(explicit)
		if err != nil {
			return "", fmt.Errorf("%w: CHROME_PATH %q: %v", ErrPDFDependencyMissing, explicit, err)
		}
		return resolved, nil
	}
	for _, name := range browserCandidates {
		if resolved, err := lookPath(name); err == nil {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("%w: no chromium or chrome on PATH", ErrPDFDependencyMissing)
}

// htmlDataURL embeds a page in a data URL. Only RFC 3986 unreserved bytes are
// kept as is; spaces become %20, not +.
func htmlDataURL(markup string) string {
	var b strings.Builder
	b.WriteString("data:text/html;charset=utf-8,")
	for i := 0; i < len(markup); i++ {
		c := markup[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// pageFooter is the print footer: document title left, page counter right.
// Chrome fills the pageNumber and totalPages spans.
func pageFooter(title string) string {
	return `<div style="font-size:8px;width:100%;margin:0 0.75in;display:flex;justify-content:space-between;color:#666">` +
		`<span>` + template.HTMLEscapeString(title) + `</span>` +
		`<span><span class="pageNumber"></span> / <span class="totalPages"></span></span>` +
		`</div>`
}

// printPDF prints a standalone page to an A4 PDF with headless Chrome.
func printPDF(parent context.Context, markup, title string) (*Result, error) {
	browser, err := findBrowser(os.Getenv, exec.LookPath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(parent, pdfTimeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(browser),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	var data []byte
	err = chromedp.Run(taskCtx,
		chromedp.Navigate(htmlDataURL(markup)),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			data, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithMarginTop(0.75).
				WithMarginBottom(0.9).
				WithMarginLeft(0.75).
				WithMarginRight(0.75).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate("<span></span>").
				WithFooterTemplate(pageFooter(title)).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	return &Result{
		Data:     data,
		Filename: Filename(title) + ".pdf",
		MimeType: "application/pdf",
	}, nil
}
