package ml

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// TrainTestSplit returns shuffled train/test row indices. The test share is
// ceil(testSize*n). Stratified splits keep per-label proportions and fail when
// a label has fewer than 2 rows or either side cannot hold every label.
func TrainTestSplit(y []string, testSize float64, seed uint64, stratify bool) (train, test []int, err error) {
	n := len(y)
	if n < 2 {
		return nil, nil, fmt.Errorf("split: need at least 2 samples, got %d", n)
	}
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("split: test size %.3f out of (0,1)", testSize)
	}
	nTest := int(math.Ceil(testSize * float64(n)))
	if nTest >= n {
		nTest = n - 1
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	if !stratify {
		perm := rng.Perm(n)
		test = append([]int(nil), perm[:nTest]...)
		train = append([]int(nil), perm[nTest:]...)
		return train, test, nil
	}

	classes := UniqueLabels(y)
	counts := LabelCounts(y)
	for _, c := range classes {
		if counts[c] < 2 {
			return nil, nil, fmt.Errorf("split: label %q has %d member(s), stratification needs at least 2", c, counts[c])
		}
	}
	nTrain := n - nTest
	if nTest < len(classes) || nTrain < len(classes) {
		return nil, nil, fmt.Errorf("split: %d test / %d train rows cannot hold %d labels", nTest, nTrain, len(classes))
	}

	alloc := allocateStratified(classes, counts, n, nTest)

	byClass := make(map[string][]int, len(classes))
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	for _, c := range classes {
		members := byClass[c]
		rng.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		test = append(test, members[:alloc[c]]...)
		train = append(train, members[alloc[c]:]...)
	}
	rng.Shuffle(len(test), func(i, j int) { test[i], test[j] = test[j], test[i] })
	rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	return train, test, nil
}

// allocateStratified distributes nTest by largest remainder, keeping at least
// one row of every label on each side.
func allocateStratified(classes []string, counts map[string]int, n, nTest int) map[string]int {
	alloc := make(map[string]int, len(classes))
	type rem struct {
		label string
		frac  float64
	}
	rems := make([]rem, 0, len(classes))
	assigned := 0
	for _, c := range classes {
		exact := float64(nTest) * float64(counts[c]) / float64(n)
		base := int(math.Floor(exact))
		if base < 1 {
			base = 1
		}
		if base > counts[c]-1 {
			base = counts[c] - 1
		}
		alloc[c] = base
		assigned += base
		rems = append(rems, rem{label: c, frac: exact - math.Floor(exact)})
	}
	sort.SliceStable(rems, func(i, j int) bool { return rems[i].frac > rems[j].frac })

	for assigned < nTest {
		moved := false
		for _, r := range rems {
			if assigned >= nTest {
				break
			}
			if alloc[r.label] < counts[r.label]-1 {
				alloc[r.label]++
				assigned++
				moved = true
			}
		}
		if !moved {
			break
		}
	}
	for assigned > nTest {
		moved := false
		for i := len(rems) - 1; i >= 0 && assigned > nTest; i-- {
			if alloc[rems[i].label] > 1 {
				alloc[rems[i].label]--
				assigned--
				moved = true
			}
		}
		if !moved {
			break
		}
	}
	return alloc
}
