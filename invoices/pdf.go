package invoices

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

//go:embed templates/invoice.html
var templateFS embed.FS

var invoiceTemplate = template.Must(template.ParseFS(templateFS, "templates/invoice.html"))

type Renderer interface {
	Render(ctx context.Context, data Data) ([]byte, error)
}

func RenderHTML(data Data) (string, error) {
	var rendered bytes.Buffer
	if err := invoiceTemplate.Execute(&rendered, data); err != nil {
		return "", fmt.Errorf("failed to render invoice template: %w", err)
	}
	return rendered.String(), nil
}

// ChromeRenderer prints the invoice HTML to PDF with a headless Chrome.
type ChromeRenderer struct {
	timeout time.Duration
}

func NewChromeRenderer(timeout time.Duration) *ChromeRenderer {
	return &ChromeRenderer{timeout: timeout}
}

func (r *ChromeRenderer) Render(ctx context.Context, data Data) ([]byte, error) {
	htmlContent, err := RenderHTML(data)
	if err != nil {
		return nil, err
	}

	ctx, cancelTimeout := context.WithTimeout(ctx, r.timeout)
	defer cancelTimeout()
	ctx, cancel := chromedp.NewContext(ctx)
	defer cancel()

	var pdfBuffer []byte
	err = chromedp.Run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, htmlContent).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			pdf, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return err
			}
			pdfBuffer = pdf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chrome failed to print invoice: %w", err)
	}
	return pdfBuffer, nil
}
