package tree

// Option configures a DecisionTreeRegressor.
type Option func(*DecisionTreeRegressor)

// WithMaxDepth limits the depth of the tree. Zero means unlimited.
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeRegressor) {
		dt.maxDepth = depth
	}
}

// WithMinSamplesSplit sets the minimum number of samples required to split
// an internal node.
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeRegressor) {
		dt.minSamplesSplit = n
	}
}

// WithMinSamplesLeaf sets the minimum number of samples in each leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeRegressor) {
		dt.minSamplesLeaf = n
	}
}

// WithMaxFeatures sets the fraction of features considered at each split.
// Values outside (0, 1) consider every feature.
func WithMaxFeatures(frac float64) Option {
	return func(dt *DecisionTreeRegressor) {
		dt.maxFeatures = frac
	}
}

// WithRandomState seeds feature subsampling.
func WithRandomState(seed uint64) Option {
	return func(dt *DecisionTreeRegressor) {
		dt.randomState = seed
	}
}
