package utils

import (
	"context"
	"fmt"

	"github.com/cheggaaa/pb/v3"
	"github.com/samber/lo"
)

// ProgressBar is a no-op unless progress display is enabled in ctx.
type ProgressBar struct {
	*pb.ProgressBar
	showProgress bool
}

func NewProgressBar(ctx context.Context, titlePrefix string, total int64) *ProgressBar {
	showProgress := GetCtxKeyShowProgress(ctx)
	sourceIndex := GetCtxKeySourceIndex(ctx)
	targetIndex := GetCtxKeyTargetIndex(ctx)

	title := titlePrefix
	if !lo.IsEmpty(sourceIndex) && !lo.IsEmpty(targetIndex) {
		title += "." + sourceIndex + "->" + targetIndex
	}

	var bar *pb.ProgressBar
	if showProgress {
		tmpl := `{{ red "%s:" }} {{ bar . "<" "-" (cycle . "↖" "↗" "↘" "↙" ) "." ">"}} {{counters . }} {{percent .}}`
		bar = pb.ProgressBarTemplate(fmt.Sprintf(tmpl, title)).Start64(total)
	}

	return &ProgressBar{bar, showProgress}
}

func (bar *ProgressBar) Update(current, total int64) *ProgressBar {
	if !bar.showProgress {
		return bar
	}
	if total > 0 && total != bar.Total() {
		bar.SetTotal(total)
	}
	bar.SetCurrent(current)
	return bar
}

func (bar *ProgressBar) Finish() *ProgressBar {
	if !bar.showProgress {
		return bar
	}

	bar.ProgressBar = bar.ProgressBar.Finish()
	return bar
}
