package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wcharczuk/go-chart/v2"
)

// handleChart renders the retained snapshot history as a PNG time series.
func (s *Server) handleChart(c *gin.Context) {
	points := s.deps.Prices.History()
	if len(points) < 2 {
		c.String(http.StatusServiceUnavailable, "not enough data yet")
		return
	}

	times := make([]time.Time, 0, len(points))
	buys := make([]float64, 0, len(points))
	sells := make([]float64, 0, len(points))
	for _, p := range points {
		times = append(times, p.FetchedAt)
		buy, _ := p.Buy.Float64()
		sell, _ := p.Sell.Float64()
		buys = append(buys, buy)
		sells = append(sells, sell)
	}

	graph := chart.Chart{
		Width:  900,
		Height: 360,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeMinuteValueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "buy",
				XValues: times,
				YValues: buys,
			},
			chart.TimeSeries{
				Name:    "sell",
				XValues: times,
				YValues: sells,
				Style: chart.Style{
					StrokeColor: chart.ColorAlternateGreen,
				},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	c.Header("Content-Type", "image/png")
	if err := graph.Render(chart.PNG, c.Writer); err != nil {
		s.logger.Error().Err(err).Msg("chart render failed")
	}
}
