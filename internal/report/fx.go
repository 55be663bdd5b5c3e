package report

import (
	"github.com/smallbiznis/equiplytics/internal/clock"
	"go.uber.org/fx"
)

var Module = fx.Module("report",
	fx.Provide(func() ChartRenderer { return NewBarChart() }),
	fx.Provide(func(chart ChartRenderer, clk clock.Clock) *Builder { return NewBuilder(chart, clk) }),
	fx.Provide(NewRenderer),
)
