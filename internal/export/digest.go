// Package export renders run results into operator-facing artifacts.
package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/leadnexus/subiq/internal/model"
)

var printer = message.NewPrinter(language.English)

// summaryOrder fixes the row order of the action count sheet.
var summaryOrder = []model.ActionType{
	model.ActionPauseImmediate,
	model.ActionWarning14Day,
	model.ActionDemoteWithWarning,
	model.ActionDemoteToStandard,
	model.ActionNoPremiumAvailable,
	model.ActionReview,
	model.ActionUpgradeToPremium,
	model.ActionKeepPremiumWatch,
	model.ActionKeepStandardClose,
	model.ActionKeepPremium,
	model.ActionKeepStandard,
	model.ActionInsufficientVolume,
}

// WriteDigest writes a run digest workbook: a summary sheet counting
// recommended actions, plus a per-sub_id detail sheet.
func WriteDigest(path string, run model.Run, results []model.ClassificationResult) error {
	wb := xlsx.NewFile()

	if err := addSummarySheet(wb, run, results); err != nil {
		return err
	}
	if err := addDetailSheet(wb, results); err != nil {
		return err
	}

	if err := wb.Save(path); err != nil {
		return eris.Wrapf(err, "export: save digest %s", path)
	}
	zap.L().Info("export: digest written",
		zap.String("path", path),
		zap.String("run_id", run.ID),
		zap.Int("rows", len(results)))
	return nil
}

func addSummarySheet(wb *xlsx.File, run model.Run, results []model.ClassificationResult) error {
	sheet, err := wb.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}

	meta := sheet.AddRow()
	meta.AddCell().SetString("Run")
	meta.AddCell().SetString(run.ID)
	dates := sheet.AddRow()
	dates.AddCell().SetString("Window")
	dates.AddCell().SetString(run.WindowStart.Format("2006-01-02") + " to " + run.WindowEnd.Format("2006-01-02"))
	sheet.AddRow()

	header := sheet.AddRow()
	header.AddCell().SetString("Action")
	header.AddCell().SetString("Sub IDs")

	counts := make(map[model.ActionType]int, len(summaryOrder))
	for _, r := range results {
		counts[r.ActionType]++
	}
	for _, action := range summaryOrder {
		if counts[action] == 0 {
			continue
		}
		row := sheet.AddRow()
		row.AddCell().SetString(string(action))
		row.AddCell().SetString(printer.Sprintf("%d", counts[action]))
	}

	total := sheet.AddRow()
	total.AddCell().SetString("Total")
	total.AddCell().SetString(printer.Sprintf("%d", len(results)))
	return nil
}

func addDetailSheet(wb *xlsx.File, results []model.ClassificationResult) error {
	sheet, err := wb.AddSheet("Detail")
	if err != nil {
		return eris.Wrap(err, "export: add detail sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{
		"Sub ID", "Vertical", "Traffic Type", "Current", "Recommended",
		"Action", "Call Tier", "Lead Tier", "Confidence", "Warning Until", "Reasons",
	} {
		header.AddCell().SetString(h)
	}

	for _, r := range results {
		row := sheet.AddRow()
		row.AddCell().SetString(r.SubID)
		row.AddCell().SetString(string(r.Vertical))
		row.AddCell().SetString(string(r.TrafficType))
		row.AddCell().SetString(string(r.CurrentChannel))
		row.AddCell().SetString(string(r.RecommendedChannel))
		row.AddCell().SetString(string(r.ActionType))
		row.AddCell().SetString(string(r.CallTier))
		row.AddCell().SetString(string(r.LeadTier))
		row.AddCell().SetString(string(r.Confidence))
		if r.WarningUntil != nil {
			row.AddCell().SetString(r.WarningUntil.Format("2006-01-02"))
		} else {
			row.AddCell().SetString("")
		}
		row.AddCell().SetString(joinReasons(r.ReasonCodes))
	}
	return nil
}

func joinReasons(codes []string) string {
	out := ""
	for i, c := range codes {
		if i > 0 {
			out += "; "
		}
		out += c
	}
	return out
}
