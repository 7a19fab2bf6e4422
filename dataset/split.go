package dataset

import (
	"math"
	"math/rand/v2"
	"strconv"

	"github.com/YuminosukeSato/cropyield/pkg/errors"
)

// ShuffleSplit returns a random permutation of [0, n) divided into a train
// part and a test part holding ceil(testFrac*n) indices. The same seed
// always produces the same split.
func ShuffleSplit(n int, testFrac float64, seed uint64) (train, test []int, err error) {
	if testFrac <= 0 || testFrac >= 1 {
		return nil, nil, errors.NewValidationError("test_size", "must be in (0, 1)", testFrac)
	}
	nTest := int(math.Ceil(testFrac * float64(n)))
	nTrain := n - nTest
	if nTest == 0 || nTrain == 0 {
		return nil, nil, errors.NewValueError("ShuffleSplit",
			"with n_samples="+strconv.Itoa(n)+" the resulting train or test set would be empty")
	}

	rng := rand.New(rand.NewPCG(seed, seed))
	perm := rng.Perm(n)
	return perm[nTest:], perm[:nTest], nil
}

// TrainTestSplit splits f into train and test frames with ShuffleSplit.
func TrainTestSplit(f *Frame, testFrac float64, seed uint64) (train, test *Frame, err error) {
	trainIdx, testIdx, err := ShuffleSplit(f.NumRows(), testFrac, seed)
	if err != nil {
		return nil, nil, err
	}
	return f.Take(trainIdx), f.Take(testIdx), nil
}

// Partitions is a train/validation/test split of one frame.
type Partitions struct {
	Train      *Frame
	Validation *Frame
	Test       *Frame
}

// SplitThreeWay first holds out 1-trainRatio of the rows, then splits the
// held-out rows into validation and test using the relative ratio
// valRatio/(valRatio+testRatio). Both steps use seed.
func SplitThreeWay(f *Frame, trainRatio, valRatio, testRatio float64, seed uint64) (Partitions, error) {
	train, rest, err := TrainTestSplit(f, 1-trainRatio, seed)
	if err != nil {
		return Partitions{}, errors.Wrap(err, "split train")
	}
	valRelative := valRatio / (valRatio + testRatio)
	val, test, err := TrainTestSplit(rest, 1-valRelative, seed)
	if err != nil {
		return Partitions{}, errors.Wrap(err, "split validation/test")
	}
	return Partitions{Train: train, Validation: val, Test: test}, nil
}
