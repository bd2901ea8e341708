package cluster

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/GageDeZoort/gnn-tracking/track/metrics"
	"github.com/GageDeZoort/gnn-tracking/track/search"
)

// backgroundSector marks hits that belong to no detector sector; they are
// skipped both when choosing a sector to study and when evaluating the best
// parameters.
const backgroundSector = -1

// extractor pulls one scalar out of a configured metric, resolving dotted
// component names.
type extractor func(truth []int64, labels []int) (float64, error)

// ScannerConfig configures a clustering hyperparameter scan.
type ScannerConfig struct {
	// Algorithm clusters one (possibly sector-restricted) feature matrix.
	Algorithm Algorithm
	// Suggest draws the algorithm's parameters from a trial.
	Suggest search.Suggester
	// Graphs holds the per-event feature matrices to cluster.
	Graphs []*mat.Dense
	// Truth holds the particle id of every row of the matching graph.
	Truth [][]int64
	// Sectors optionally assigns each row of each graph to a detector
	// sector, backgroundSector for none. Nil treats every graph as one
	// sector.
	Sectors [][]int
	// Metrics are evaluated with the best parameters after the scan. Keys
	// must not contain dots; composite results flatten to "key.component".
	Metrics map[string]Metric
	// Guide names the metric the search maximizes, either a key of Metrics
	// or "key.component" for a composite one.
	Guide string
	// Proxy optionally names a cheaper metric that guides pruning during the
	// pass over the graphs; the guide then runs in a second pass.
	Proxy string
	// EarlyStop may end a scan before its budget is used; nil installs
	// search.NoEarlyStopping.
	EarlyStop search.EarlyStopper
	// Seed feeds the sector choice and the default sampler.
	Seed int64
	// PruningGracePeriod is the number of graphs clustered before
	// intermediate reporting starts; values below 1 select the default 20.
	PruningGracePeriod int
	// Sampler and Pruner override the study defaults when non-nil.
	Sampler search.Sampler
	Pruner  search.Pruner
}

// Scanner searches clustering hyperparameters over a set of graphs. The
// study is created lazily by the first Scan and persists across Scan calls
// on the same scanner, so repeated scans continue one search. The sector
// studied per graph is drawn once and also persists.
type Scanner struct {
	cfg      ScannerConfig
	guide    extractor
	proxy    extractor
	study    *search.Study
	rng      *rand.Rand
	sectorOf map[int]int
}

// NewScanner validates cfg and builds a scanner.
func NewScanner(cfg ScannerConfig) (*Scanner, error) {
	if cfg.Algorithm == nil {
		return nil, fmt.Errorf("cluster: scanner needs a clustering algorithm")
	}
	if cfg.Suggest == nil {
		return nil, fmt.Errorf("cluster: scanner needs a parameter suggester")
	}
	if len(cfg.Graphs) == 0 {
		return nil, fmt.Errorf("cluster: scanner needs at least one graph")
	}
	if len(cfg.Truth) != len(cfg.Graphs) {
		return nil, fmt.Errorf("cluster: %d graphs but %d truth vectors", len(cfg.Graphs), len(cfg.Truth))
	}
	if cfg.Sectors != nil && len(cfg.Sectors) != len(cfg.Graphs) {
		return nil, fmt.Errorf("cluster: %d graphs but %d sector vectors", len(cfg.Graphs), len(cfg.Sectors))
	}
	for i, g := range cfg.Graphs {
		rows := 0
		if g != nil {
			rows, _ = g.Dims()
		}
		if len(cfg.Truth[i]) != rows {
			return nil, fmt.Errorf("cluster: graph %d has %d rows but %d truth labels", i, rows, len(cfg.Truth[i]))
		}
		if cfg.Sectors != nil && len(cfg.Sectors[i]) != rows {
			return nil, fmt.Errorf("cluster: graph %d has %d rows but %d sector labels", i, rows, len(cfg.Sectors[i]))
		}
	}
	for name := range cfg.Metrics {
		if strings.Contains(name, ".") {
			return nil, fmt.Errorf("cluster: metric name %q must not contain a dot", name)
		}
	}
	guide, err := metricExtractor(cfg.Metrics, cfg.Guide)
	if err != nil {
		return nil, err
	}
	var proxy extractor
	if cfg.Proxy != "" {
		if proxy, err = metricExtractor(cfg.Metrics, cfg.Proxy); err != nil {
			return nil, err
		}
	}
	if cfg.EarlyStop == nil {
		cfg.EarlyStop = search.NoEarlyStopping{}
	}
	if cfg.PruningGracePeriod < 1 {
		cfg.PruningGracePeriod = 20
	}
	return &Scanner{
		cfg:      cfg,
		guide:    guide,
		proxy:    proxy,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		sectorOf: make(map[int]int),
	}, nil
}

// metricExtractor resolves a guide or proxy name against the configured
// metrics, validating it eagerly so a bad name fails at construction.
func metricExtractor(from map[string]Metric, name string) (extractor, error) {
	if name == "" {
		return nil, fmt.Errorf("cluster: scanner needs a guide metric")
	}
	base, component, dotted := strings.Cut(name, ".")
	m, ok := from[base]
	if !ok {
		return nil, fmt.Errorf("cluster: metric %q is not configured", base)
	}
	return func(truth []int64, labels []int) (float64, error) {
		mv, err := m(truth, labels)
		if err != nil {
			return 0, err
		}
		if dotted {
			if !mv.IsComposite() {
				return 0, fmt.Errorf("cluster: metric %q is scalar, cannot take component %q", base, component)
			}
			v, ok := mv.Components()[component]
			if !ok {
				return 0, fmt.Errorf("cluster: metric %q has no component %q", base, component)
			}
			return v, nil
		}
		if mv.IsComposite() {
			return 0, fmt.Errorf("cluster: metric %q is composite, name one of its components", base)
		}
		return mv.Scalar(), nil
	}, nil
}

// Scan runs up to budget trials, then evaluates every configured metric with
// the best parameters found so far. A non-nil startParams set is enqueued
// first so the warm start is the next parameter set tried.
func (s *Scanner) Scan(budget int, startParams map[string]float64) (*ScanResult, error) {
	s.cfg.EarlyStop.Reset()
	if s.study == nil {
		s.study = search.NewStudy(search.StudyConfig{
			Direction: search.Maximize,
			Sampler:   s.cfg.Sampler,
			Pruner:    s.cfg.Pruner,
			Seed:      s.cfg.Seed,
		})
	}
	if startParams != nil {
		logrus.Debugf("cluster: warm-starting scan from %v", startParams)
		s.study.EnqueueParams(startParams)
	}
	logrus.Info("Starting hyperparameter scan for clustering")
	start := time.Now()
	if err := s.study.Optimize(s.objective, budget); err != nil {
		return nil, err
	}
	logrus.Infof("Clustering hyperparameter scan took %s", time.Since(start).Round(time.Millisecond))
	evaluated, err := s.evaluateBest()
	if err != nil {
		return nil, err
	}
	return &ScanResult{Study: s.study, Metrics: evaluated}, nil
}

// objective scores one parameter set. A first pass clusters every graph on
// its cached sector and tracks the proxy (or the guide when no proxy is
// configured), reporting running means once past the grace period; with a
// proxy configured, a second pass computes the guide on the stored labels.
// Both passes consult the pruner after every graph.
func (s *Scanner) objective(t *search.Trial) (float64, error) {
	params, err := s.cfg.Suggest(t)
	if err != nil {
		return 0, err
	}
	firstPass := s.guide
	if s.proxy != nil {
		firstPass = s.proxy
	}
	nGraphs := len(s.cfg.Graphs)
	allLabels := make([][]int, 0, nGraphs)
	allTruth := make([][]int64, 0, nGraphs)
	foms := make([]float64, 0, nGraphs)
	for i, graph := range s.cfg.Graphs {
		mask, err := s.trialMask(i)
		if err != nil {
			return 0, err
		}
		labels, err := s.cfg.Algorithm(maskedRows(graph, mask), params)
		if err != nil {
			return 0, err
		}
		truth := maskedTruth(s.cfg.Truth[i], mask)
		allLabels = append(allLabels, labels)
		allTruth = append(allTruth, truth)
		v, err := firstPass(truth, labels)
		if err != nil {
			return 0, err
		}
		foms = append(foms, v)
		if i >= s.cfg.PruningGracePeriod {
			t.Report(i, metrics.NaNMean(foms))
		}
		if t.ShouldPrune() {
			return 0, search.ErrPruned
		}
	}
	if s.proxy != nil {
		foms = foms[:0]
		for i := range allLabels {
			v, err := s.guide(allTruth[i], allLabels[i])
			if err != nil {
				return 0, err
			}
			foms = append(foms, v)
			if i >= 2 {
				t.Report(i+nGraphs, metrics.NaNMean(foms))
			}
			if t.ShouldPrune() {
				return 0, search.ErrPruned
			}
		}
	}
	global := metrics.NaNMean(foms)
	if s.cfg.EarlyStop.Stop(global) {
		logrus.Info("Stopped clustering scan early")
		s.study.Stop()
	}
	return global, nil
}

// sectorToStudy returns the sector evaluated for a graph during trials. The
// first visit draws one uniformly from the non-background sectors present;
// every later trial reuses that choice.
func (s *Scanner) sectorToStudy(iGraph int) (int, error) {
	if sector, ok := s.sectorOf[iGraph]; ok {
		return sector, nil
	}
	available := distinctSectors(s.cfg.Sectors[iGraph])
	if len(available) == 0 {
		return 0, fmt.Errorf("cluster: graph %d has no sector to study", iGraph)
	}
	choice := available[s.rng.Intn(len(available))]
	s.sectorOf[iGraph] = choice
	return choice, nil
}

// trialMask returns the row mask restricting a graph to its studied sector,
// or nil when no sectors are configured.
func (s *Scanner) trialMask(iGraph int) ([]bool, error) {
	if s.cfg.Sectors == nil {
		return nil, nil
	}
	sector, err := s.sectorToStudy(iGraph)
	if err != nil {
		return nil, err
	}
	return sectorMask(s.cfg.Sectors[iGraph], sector), nil
}

// evaluateBest clusters every non-background sector of every graph with the
// best parameters and averages each configured metric over all of the pairs
// with a NaN-skipping mean, flattening composite results to "name.component".
func (s *Scanner) evaluateBest() (map[string]float64, error) {
	best := s.study.BestParams()
	if best == nil {
		return nil, fmt.Errorf("cluster: no trial completed, nothing to evaluate")
	}
	logrus.Debug("Evaluating all metrics for best clustering")
	names := make([]string, 0, len(s.cfg.Metrics))
	for name := range s.cfg.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	values := make(map[string][]float64)
	for i, graph := range s.cfg.Graphs {
		for _, mask := range s.evalMasks(i) {
			labels, err := s.cfg.Algorithm(maskedRows(graph, mask), best)
			if err != nil {
				return nil, err
			}
			truth := maskedTruth(s.cfg.Truth[i], mask)
			for _, name := range names {
				mv, err := s.cfg.Metrics[name](truth, labels)
				if err != nil {
					return nil, err
				}
				if !mv.IsComposite() {
					values[name] = append(values[name], mv.Scalar())
					continue
				}
				for component, v := range mv.Components() {
					key := name + "." + component
					values[key] = append(values[key], v)
				}
			}
		}
	}
	out := make(map[string]float64, len(values))
	for name, vs := range values {
		out[name] = metrics.NaNMean(vs)
	}
	return out, nil
}

// evalMasks lists the row masks of every non-background sector of graph i,
// or a single nil mask when no sectors are configured.
func (s *Scanner) evalMasks(iGraph int) [][]bool {
	if s.cfg.Sectors == nil {
		return [][]bool{nil}
	}
	sectors := distinctSectors(s.cfg.Sectors[iGraph])
	masks := make([][]bool, 0, len(sectors))
	for _, sector := range sectors {
		masks = append(masks, sectorMask(s.cfg.Sectors[iGraph], sector))
	}
	return masks
}

// distinctSectors returns the sorted distinct non-background sector ids.
func distinctSectors(sectors []int) []int {
	present := make(map[int]bool)
	for _, sector := range sectors {
		if sector != backgroundSector {
			present[sector] = true
		}
	}
	out := make([]int, 0, len(present))
	for sector := range present {
		out = append(out, sector)
	}
	sort.Ints(out)
	return out
}

func sectorMask(sectors []int, sector int) []bool {
	mask := make([]bool, len(sectors))
	for i, s := range sectors {
		mask[i] = s == sector
	}
	return mask
}

// maskedRows copies the masked rows of m into a new matrix. A nil mask keeps
// every row; a mask keeping nothing yields nil.
func maskedRows(m *mat.Dense, mask []bool) *mat.Dense {
	if mask == nil {
		return m
	}
	kept := 0
	for _, keep := range mask {
		if keep {
			kept++
		}
	}
	if kept == 0 {
		return nil
	}
	_, cols := m.Dims()
	out := mat.NewDense(kept, cols, nil)
	row := 0
	for i, keep := range mask {
		if !keep {
			continue
		}
		out.SetRow(row, m.RawRowView(i))
		row++
	}
	return out
}

func maskedTruth(truth []int64, mask []bool) []int64 {
	if mask == nil {
		return truth
	}
	out := make([]int64, 0, len(truth))
	for i, keep := range mask {
		if keep {
			out = append(out, truth[i])
		}
	}
	return out
}

// ScanResult is the read-only outcome of one Scan call.
type ScanResult struct {
	// Study is the live search; later Scan calls on the same scanner keep
	// extending it.
	Study *search.Study
	// Metrics holds every configured metric averaged over all graph/sector
	// pairs under the best parameters, composites flattened to
	// "name.component".
	Metrics map[string]float64
}

// BestParams returns the parameters of the best completed trial.
func (r *ScanResult) BestParams() map[string]float64 { return r.Study.BestParams() }

// BestValue returns the objective value of the best completed trial.
func (r *ScanResult) BestValue() float64 { return r.Study.BestValue() }
