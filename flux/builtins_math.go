package flux

import (
	"math"
	"math/big"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

func registerMath(b *registryBuilder) {
	b.add("sqrt", "x", EffectPure, "Square root of x as a float.", builtinSqrt)
	b.add("pow", "a, b", EffectPure, "a raised to b as a float.", builtinPow)
	b.add("abs", "x", EffectPure, "Absolute value, keeping the int/float type.", builtinAbs)
	b.add("floor", "x", EffectPure, "Largest int not greater than x.", builtinFloor)
	b.add("ceil", "x", EffectPure, "Smallest int not less than x.", builtinCeil)
	b.add("round", "x, n=0", EffectPure, "x rounded half-to-even to n decimal places.", builtinRound)
	b.add("log", "x, base=e", EffectPure, "Logarithm of x; a falsy base means natural log.", builtinLog)
	b.add("exp", "x", EffectPure, "e raised to x.", floatUnary(math.Exp))
	b.add("sin", "x", EffectPure, "Sine of x radians.", floatUnary(math.Sin))
	b.add("cos", "x", EffectPure, "Cosine of x radians.", floatUnary(math.Cos))
	b.add("tan", "x", EffectPure, "Tangent of x radians.", floatUnary(math.Tan))
	b.add("factorial", "n", EffectPure, "n! for a non-negative int.", builtinFactorial)
	b.add("gcd", "a, b", EffectPure, "Greatest common divisor of two ints.", builtinGCD)
	b.add("lcm", "a, b", EffectPure, "Least common multiple of two ints.", builtinLCM)
	b.add("deg", "x", EffectPure, "Radians to degrees.", floatUnary(func(x float64) float64 { return x * 180 / math.Pi }))
	b.add("rad", "x", EffectPure, "Degrees to radians.", floatUnary(func(x float64) float64 { return x * math.Pi / 180 }))
	b.add("isclose", "a, b, rel_tol=1e-9, abs_tol=0.0", EffectPure, "Whether a and b are within tolerance of each other.", builtinIsClose)
	b.add("max", "iterable, *args", EffectPure, "Largest element of an iterable, or of the arguments.", extremum(syntax.GT))
	b.add("min", "iterable, *args", EffectPure, "Smallest element of an iterable, or of the arguments.", extremum(syntax.LT))
	b.add("sum", "iterable", EffectPure, "Sum of the elements, starting from 0.", builtinSum)
	b.add("mean", "iterable", EffectPure, "Arithmetic mean.", builtinMean)
	b.add("median", "iterable", EffectPure, "Middle value; the mean of the two middle values for even lengths.", builtinMedian)
	b.add("variance", "iterable", EffectPure, "Sample variance.", builtinVariance)
}

var errMathDomain = newError(KindValue, "math domain error")

func floatResult(f float64) (starlark.Value, error) {
	if math.IsInf(f, 0) {
		return nil, newError(KindArithmetic, "math range error")
	}
	return starlark.Float(f), nil
}

func floatUnary(op func(float64) float64) BuiltinFunc {
	return func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var x number
		if err := unpackPositional(fn, args, kwargs, 1, &x); err != nil {
			return nil, err
		}
		in := x.float()
		out := op(in)
		if math.IsNaN(out) && !math.IsNaN(in) {
			return nil, errMathDomain
		}
		if math.IsInf(out, 0) && !math.IsInf(in, 0) {
			return nil, newError(KindArithmetic, "math range error")
		}
		return starlark.Float(out), nil
	}
}

func builtinSqrt(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x number
	if err := unpackPositional(fn, args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	if x.float() < 0 {
		return nil, errMathDomain
	}
	return starlark.Float(math.Sqrt(x.float())), nil
}

func builtinPow(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var a, b number
	if err := unpackPositional(fn, args, kwargs, 2, &a, &b); err != nil {
		return nil, err
	}
	base, exp := a.float(), b.float()
	if base == 0 && exp < 0 {
		return nil, errMathDomain
	}
	out := math.Pow(base, exp)
	if math.IsNaN(out) {
		return nil, errMathDomain
	}
	return floatResult(out)
}

func builtinAbs(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x number
	if err := unpackPositional(fn, args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	switch v := x.value.(type) {
	case starlark.Int:
		if v.Sign() < 0 {
			return starlark.MakeInt(0).Sub(v), nil
		}
		return v, nil
	default:
		return starlark.Float(math.Abs(x.float())), nil
	}
}

func roundToInt(fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple, op func(float64) float64) (starlark.Value, error) {
	var x number
	if err := unpackPositional(fn, args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	if i, ok := x.value.(starlark.Int); ok {
		return i, nil
	}
	f := x.float()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, newError(KindValue, "%s: cannot convert %v to integer", fn.Name(), f)
	}
	return starlark.NumberToInt(starlark.Float(op(f)))
}

func builtinFloor(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return roundToInt(fn, args, kwargs, math.Floor)
}

func builtinCeil(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return roundToInt(fn, args, kwargs, math.Ceil)
}

func builtinRound(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x number
	n := 0
	if err := unpack(fn, args, kwargs, "x", &x, "n?", &n); err != nil {
		return nil, err
	}
	scale := math.Pow(10, float64(n))
	rounded := math.RoundToEven(x.float()*scale) / scale
	if _, ok := x.value.(starlark.Int); ok {
		if n >= 0 {
			return x.value, nil
		}
		return starlark.NumberToInt(starlark.Float(rounded))
	}
	if math.IsNaN(rounded) || math.IsInf(rounded, 0) {
		return x.value, nil
	}
	return starlark.Float(rounded), nil
}

func builtinLog(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x number
	var base starlark.Value = starlark.Float(math.E)
	if err := unpack(fn, args, kwargs, "x", &x, "base?", &base); err != nil {
		return nil, err
	}
	if x.float() <= 0 {
		return nil, errMathDomain
	}
	if !truth(base) {
		return starlark.Float(math.Log(x.float())), nil
	}
	b, err := toFloat(fn.Name(), base)
	if err != nil {
		return nil, err
	}
	if b <= 0 {
		return nil, errMathDomain
	}
	if b == 1 {
		return nil, newError(KindZeroDivision, "float division by zero")
	}
	return starlark.Float(math.Log(x.float()) / math.Log(b)), nil
}

func builtinFactorial(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var n starlark.Int
	if err := unpackPositional(fn, args, kwargs, 1, &n); err != nil {
		return nil, err
	}
	v, ok := n.Int64()
	if !ok || v < 0 {
		return nil, newError(KindValue, "factorial() not defined for negative values")
	}
	if v > 100000 {
		return nil, newError(KindArithmetic, "factorial() argument should not exceed 100000")
	}
	return starlark.MakeBigInt(new(big.Int).MulRange(1, v)), nil
}

func twoInts(fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (*big.Int, *big.Int, error) {
	var a, b starlark.Int
	if err := unpackPositional(fn, args, kwargs, 2, &a, &b); err != nil {
		return nil, nil, err
	}
	x := new(big.Int).Abs(a.BigInt())
	y := new(big.Int).Abs(b.BigInt())
	return x, y, nil
}

func builtinGCD(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	x, y, err := twoInts(fn, args, kwargs)
	if err != nil {
		return nil, err
	}
	return starlark.MakeBigInt(new(big.Int).GCD(nil, nil, x, y)), nil
}

func builtinLCM(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	x, y, err := twoInts(fn, args, kwargs)
	if err != nil {
		return nil, err
	}
	if x.Sign() == 0 || y.Sign() == 0 {
		return starlark.MakeInt(0), nil
	}
	gcd := new(big.Int).GCD(nil, nil, x, y)
	out := new(big.Int).Mul(x, y)
	return starlark.MakeBigInt(out.Quo(out, gcd)), nil
}

func builtinIsClose(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var a, b number
	relTol := number{value: starlark.Float(1e-9)}
	absTol := number{value: starlark.Float(0)}
	if err := unpack(fn, args, kwargs, "a", &a, "b", &b, "rel_tol?", &relTol, "abs_tol?", &absTol); err != nil {
		return nil, err
	}
	rel, abs := relTol.float(), absTol.float()
	if rel < 0 || abs < 0 {
		return nil, newError(KindValue, "tolerances must be non-negative")
	}
	x, y := a.float(), b.float()
	if x == y {
		return starlark.True, nil
	}
	if math.IsInf(x, 0) || math.IsInf(y, 0) {
		return starlark.False, nil
	}
	diff := math.Abs(x - y)
	close := diff <= math.Abs(rel*y) || diff <= math.Abs(rel*x) || diff <= abs
	return starlark.Bool(close), nil
}

func extremum(op syntax.Token) BuiltinFunc {
	return func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(kwargs) > 0 {
			return nil, newError(KindType, "%s: unexpected keyword arguments", fn.Name())
		}
		if len(args) == 0 {
			return nil, newError(KindType, "%s expected at least 1 argument, got 0", fn.Name())
		}
		candidates := []starlark.Value(args)
		if len(args) == 1 {
			elems, err := elements(fn.Name(), args[0])
			if err != nil {
				return nil, err
			}
			candidates = elems
		}
		if len(candidates) == 0 {
			return nil, newError(KindValue, "%s() arg is an empty sequence", fn.Name())
		}
		best := candidates[0]
		for _, v := range candidates[1:] {
			better, err := starlark.Compare(op, v, best)
			if err != nil {
				return nil, &Error{Kind: KindType, Message: err.Error(), Err: err}
			}
			if better {
				best = v
			}
		}
		return best, nil
	}
}

func builtinSum(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var iterable starlark.Value
	if err := unpackPositional(fn, args, kwargs, 1, &iterable); err != nil {
		return nil, err
	}
	elems, err := elements(fn.Name(), iterable)
	if err != nil {
		return nil, err
	}
	var total starlark.Value = starlark.MakeInt(0)
	for _, v := range elems {
		total, err = starlark.Binary(syntax.PLUS, total, v)
		if err != nil {
			return nil, &Error{Kind: KindType, Message: err.Error(), Err: err}
		}
	}
	return total, nil
}

// sample holds numeric data for the statistics capabilities. When every
// element is an int the exact rational values are kept so that results which
// happen to be whole stay ints.
type sample struct {
	floats []float64
	rats   []*big.Rat
	exact  bool
}

func collectSample(fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (*sample, error) {
	var iterable starlark.Value
	if err := unpackPositional(fn, args, kwargs, 1, &iterable); err != nil {
		return nil, err
	}
	elems, err := elements(fn.Name(), iterable)
	if err != nil {
		return nil, err
	}
	s := &sample{exact: true}
	for _, v := range elems {
		f, err := toFloat(fn.Name(), v)
		if err != nil {
			return nil, err
		}
		s.floats = append(s.floats, f)
		if i, ok := v.(starlark.Int); ok {
			s.rats = append(s.rats, new(big.Rat).SetInt(i.BigInt()))
		} else {
			s.exact = false
		}
	}
	return s, nil
}

func ratValue(r *big.Rat) starlark.Value {
	if r.IsInt() {
		return starlark.MakeBigInt(new(big.Int).Set(r.Num()))
	}
	f, _ := r.Float64()
	return starlark.Float(f)
}

func (s *sample) mean() starlark.Value {
	n := len(s.floats)
	if s.exact {
		total := new(big.Rat)
		for _, r := range s.rats {
			total.Add(total, r)
		}
		return ratValue(total.Quo(total, new(big.Rat).SetInt64(int64(n))))
	}
	total := 0.0
	for _, f := range s.floats {
		total += f
	}
	return starlark.Float(total / float64(n))
}

func builtinMean(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	s, err := collectSample(fn, args, kwargs)
	if err != nil {
		return nil, err
	}
	if len(s.floats) == 0 {
		return nil, newError(KindStatistics, "mean requires at least one data point")
	}
	return s.mean(), nil
}

func builtinMedian(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var iterable starlark.Value
	if err := unpackPositional(fn, args, kwargs, 1, &iterable); err != nil {
		return nil, err
	}
	elems, err := elements(fn.Name(), iterable)
	if err != nil {
		return nil, err
	}
	if len(elems) == 0 {
		return nil, newError(KindStatistics, "no median for empty data")
	}
	sorted, err := sortElements(thread, elems, starlark.None, false)
	if err != nil {
		return nil, err
	}
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2], nil
	}
	lo, err := toFloat(fn.Name(), sorted[n/2-1])
	if err != nil {
		return nil, err
	}
	hi, err := toFloat(fn.Name(), sorted[n/2])
	if err != nil {
		return nil, err
	}
	return starlark.Float((lo + hi) / 2), nil
}

func builtinVariance(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	s, err := collectSample(fn, args, kwargs)
	if err != nil {
		return nil, err
	}
	n := len(s.floats)
	if n < 2 {
		return nil, newError(KindStatistics, "variance requires at least two data points")
	}
	if s.exact {
		mean := new(big.Rat)
		for _, r := range s.rats {
			mean.Add(mean, r)
		}
		mean.Quo(mean, new(big.Rat).SetInt64(int64(n)))
		ss := new(big.Rat)
		for _, r := range s.rats {
			d := new(big.Rat).Sub(r, mean)
			ss.Add(ss, d.Mul(d, d))
		}
		return ratValue(ss.Quo(ss, new(big.Rat).SetInt64(int64(n-1)))), nil
	}
	mean := 0.0
	for _, f := range s.floats {
		mean += f
	}
	mean /= float64(n)
	ss := 0.0
	for _, f := range s.floats {
		ss += (f - mean) * (f - mean)
	}
	return starlark.Float(ss / float64(n-1)), nil
}
