package dataset

import (
	"math"
	"math/rand"

	"github.com/YuminosukeSato/bikeshare/pkg/errors"
)

// SplitIndices returns the row indices of the train and test partitions of n
// rows. The test partition holds ceil(testFraction*n) rows: the first entries
// of a permutation seeded with seed. The remaining entries, in permutation
// order, form the train partition.
func SplitIndices(n int, testFraction float64, seed int64) (train, test []int, err error) {
	if !(testFraction > 0 && testFraction < 1) {
		return nil, nil, errors.NewConfigError("data.test_size", "must be in (0, 1)", testFraction)
	}
	nTest := int(math.Ceil(testFraction * float64(n)))
	nTrain := n - nTest
	if nTest < 1 || nTrain < 1 {
		return nil, nil, errors.NewValueError("TrainTestSplit",
			"test_size leaves an empty partition for this many rows")
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return perm[nTest:], perm[:nTest], nil
}

// TrainTestSplit partitions ds into disjoint train and test datasets whose
// union is ds. The same ds, testFraction and seed always give the same rows in
// the same order.
func TrainTestSplit(ds *Dataset, testFraction float64, seed int64) (train, test *Dataset, err error) {
	trainIdx, testIdx, err := SplitIndices(ds.Len(), testFraction, seed)
	if err != nil {
		return nil, nil, err
	}
	if train, err = ds.Subset(trainIdx); err != nil {
		return nil, nil, err
	}
	if test, err = ds.Subset(testIdx); err != nil {
		return nil, nil, err
	}
	return train, test, nil
}
