package node

import (
	"fmt"
	"io"
	"math/big"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	echartstypes "github.com/go-echarts/go-echarts/v2/types"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

const linkDecimals = 18

// KeeperRow summarizes one keeper node after a run.
type KeeperRow struct {
	Node      string
	Address   string
	Checks    int
	Performs  int
	OutOfTurn int
	Earned    *big.Int
}

// UpkeepRow summarizes one generated upkeep after a run.
type UpkeepRow struct {
	Index      int
	ID         types.UpkeepID
	Registered bool
	Always     bool
	Expected   bool
	Eligible   int
	Performed  int
	// Missed counts eligible blocks never covered by a perform.
	Missed   int
	AvgDelay float64
	Balance  *big.Int
	Spent    *big.Int
}

type Report struct {
	Keepers []KeeperRow
	Upkeeps []UpkeepRow
}

// Report collects the run outcome from the registry, the deployed targets
// and the recorded stats.
func (g *Group) Report() Report {
	var report Report

	for i, keeper := range g.keepers {
		st := g.stats.Keeper(KeeperAddress(i))

		report.Keepers = append(report.Keepers, KeeperRow{
			Node:      keeper.ID,
			Address:   keeper.Address.Hex(),
			Checks:    st.Checks,
			Performs:  st.Performs,
			OutOfTurn: st.OutOfTurn,
			Earned:    new(big.Int).Set(st.Paid),
		})
	}

	for _, up := range g.upkeeps {
		row := UpkeepRow{
			Index:    up.Index,
			Always:   up.AlwaysEligible,
			Expected: up.Expected,
			Eligible: len(up.EligibleAt),
			Balance:  new(big.Int),
			Spent:    new(big.Int),
		}

		if id, ok := g.registered.Load(up.Index); ok {
			record := g.env.Registry.GetUpkeep(id)

			row.ID = id
			row.Registered = true
			row.Balance = record.Balance
			row.Spent = record.AmountSpent
		}

		var performs []uint64
		if job := g.Job(up.Index); job != nil {
			performs = job.Performs()
		}

		row.Performed = len(performs)
		row.Missed, row.AvgDelay = coverage(up.EligibleAt, performs)

		report.Upkeeps = append(report.Upkeeps, row)
	}

	return report
}

// coverage matches performs against eligible blocks. A perform covers every
// eligible block at or before it and its delay is measured from the oldest
// one it covers.
func coverage(eligibleAt, performs []uint64) (missed int, avgDelay float64) {
	var (
		next   int
		delays uint64
		count  int
	)

	for _, performed := range performs {
		if next >= len(eligibleAt) || eligibleAt[next] > performed {
			continue
		}

		delays += performed - eligibleAt[next]
		count++

		for next < len(eligibleAt) && eligibleAt[next] <= performed {
			next++
		}
	}

	if count > 0 {
		avgDelay = float64(delays) / float64(count)
	}

	return len(eligibleAt) - next, avgDelay
}

// FormatLINK renders juels as LINK with four decimals.
func FormatLINK(juels *big.Int) string {
	if juels == nil {
		return "0.0000"
	}

	return decimal.NewFromBigInt(juels, -linkDecimals).StringFixed(4)
}

// WriteTables renders the keeper and upkeep summaries as text tables.
func (r Report) WriteTables(w io.Writer) {
	keepers := table.NewWriter()
	keepers.SetOutputMirror(w)
	keepers.SetTitle("Keepers")
	keepers.AppendHeader(table.Row{"Node", "Address", "Checks", "Performs", "Out of Turn", "Earned (LINK)"})

	total := new(big.Int)

	for _, row := range r.Keepers {
		node := row.Node
		if len(node) > 8 {
			node = node[:8]
		}

		keepers.AppendRow(table.Row{node, row.Address, row.Checks, row.Performs, row.OutOfTurn, FormatLINK(row.Earned)})
		total.Add(total, row.Earned)
	}

	keepers.AppendFooter(table.Row{"", "", "", "", "Total", FormatLINK(total)})
	keepers.Render()

	upkeeps := table.NewWriter()
	upkeeps.SetOutputMirror(w)
	upkeeps.SetTitle("Upkeeps")
	upkeeps.AppendHeader(table.Row{"Index", "ID", "Expected", "Eligible", "Performed", "Missed", "Avg Delay", "Balance (LINK)", "Spent (LINK)"})

	for _, row := range r.Upkeeps {
		id := "-"
		if row.Registered {
			id = row.ID.String()
		}

		eligible := strconv.Itoa(row.Eligible)
		if row.Always {
			eligible = "always"
		}

		upkeeps.AppendRow(table.Row{
			row.Index,
			id,
			row.Expected,
			eligible,
			row.Performed,
			row.Missed,
			fmt.Sprintf("%.2f", row.AvgDelay),
			FormatLINK(row.Balance),
			FormatLINK(row.Spent),
		})
	}

	upkeeps.Render()
}

// WriteBalanceChart renders the sampled upkeep balances as an HTML page
// with one line per registered upkeep.
func (g *Group) WriteBalanceChart(w io.Writer) error {
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme: echartstypes.ThemeWesteros,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Upkeep Balances",
			Subtitle: "balance in LINK sampled at every block",
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "block", Type: "category"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "LINK", Type: "value"}),
		charts.WithToolboxOpts(opts.Toolbox{Show: true}),
		charts.WithLegendOpts(opts.Legend{Left: "center", Top: "bottom"}),
	)

	start := g.plan.Blocks.Genesis
	end := g.plan.Blocks.End()

	labels := make([]string, 0, end-start+1)
	for block := start; block <= end; block++ {
		labels = append(labels, strconv.FormatUint(block, 10))
	}

	line.SetXAxis(labels)

	for _, id := range g.registeredIDs() {
		byBlock := make(map[uint64]*big.Int)
		for _, point := range g.stats.Balances(id) {
			byBlock[point.Block] = point.Balance
		}

		data := make([]opts.LineData, 0, len(labels))

		for block := start; block <= end; block++ {
			balance, ok := byBlock[block]
			if !ok {
				data = append(data, opts.LineData{Value: "-"})

				continue
			}

			value, _ := decimal.NewFromBigInt(balance, -linkDecimals).Float64()
			data = append(data, opts.LineData{Value: value})
		}

		line.AddSeries("upkeep "+id.String(), data)
	}

	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: true}))

	page.AddCharts(line)

	return page.Render(w)
}
