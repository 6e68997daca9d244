// Package charts рисует график трат за последнюю неделю для показа истории.
package charts

import (
	"bytes"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/ivanoskov/budget_bot/internal/budget"
	"github.com/ivanoskov/budget_bot/internal/model"
)

// ChartGenerator генерирует графики для ответов бота
type ChartGenerator struct{}

// NewChartGenerator создает новый генератор графиков
func NewChartGenerator() *ChartGenerator {
	return &ChartGenerator{}
}

// WeeklySpending строит PNG с тратами по дням за последние 7 дней.
// Если бюджет настроен, добавляет линию дневного лимита.
func (g *ChartGenerator) WeeklySpending(rec *model.UserRecord, today model.Date) ([]byte, error) {
	days := 7
	xs := make([]float64, 0, days)
	spent := make([]float64, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := today.AddDays(-i)
		xs = append(xs, float64(day.Time().Unix()))
		spent = append(spent, budget.SpentOn(rec.Expenses, day).InexactFloat64())
	}

	series := []chart.Series{
		chart.ContinuousSeries{
			Name:    "Траты",
			XValues: xs,
			YValues: spent,
			Style: chart.Style{
				StrokeColor: chart.ColorRed,
				FillColor:   chart.ColorRed.WithAlpha(60),
			},
		},
	}

	title := "Траты за 7 дней"
	if rec.Configured() {
		startOfDay := rec.Balance.Add(budget.SpentOn(rec.Expenses, today))
		if daily, left := budget.DailyAllowance(startOfDay, *rec.EndDate, today); left > 0 {
			limit := make([]float64, len(xs))
			for i := range limit {
				limit[i] = daily.InexactFloat64()
			}
			series = append(series, chart.ContinuousSeries{
				Name:    "Лимит",
				XValues: xs,
				YValues: limit,
				Style: chart.Style{
					StrokeColor:     chart.ColorGreen,
					StrokeDashArray: []float64{4.0, 4.0},
				},
			})
			title = fmt.Sprintf("Траты за 7 дней (лимит %s в день)", daily.StringFixed(2))
		}
	}

	graph := chart.Chart{
		Title:  title,
		Width:  800,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{
				Top:    40,
				Left:   20,
				Right:  20,
				Bottom: 20,
			},
			FillColor: chart.ColorWhite,
		},
		XAxis: chart.XAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return time.Unix(int64(f), 0).UTC().Format("02.01")
				}
				return ""
			},
			Style: chart.Style{
				FontColor: chart.ColorBlack,
			},
		},
		YAxis: chart.YAxis{
			Style: chart.Style{
				FontColor: chart.ColorBlack,
			},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{
		chart.Legend(&graph, chart.Style{
			FontColor: chart.ColorBlack,
		}),
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("failed to render weekly chart: %w", err)
	}
	return buffer.Bytes(), nil
}
