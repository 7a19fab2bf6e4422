package linear

// Option is a function that configures LinearRegression
type Option func(*LinearRegression)

// WithFitIntercept sets whether to calculate the intercept
func WithFitIntercept(fit bool) Option {
	return func(lr *LinearRegression) {
		lr.fitIntercept = fit
	}
}

// WithRCond sets the relative cutoff below which singular values are
// treated as zero. Zero selects eps·max(n_samples, n_features).
func WithRCond(rcond float64) Option {
	return func(lr *LinearRegression) {
		lr.rcond = rcond
	}
}

// WithNJobs sets the number of workers used to prepare the design matrix
func WithNJobs(n int) Option {
	return func(lr *LinearRegression) {
		lr.nJobs = n
	}
}
