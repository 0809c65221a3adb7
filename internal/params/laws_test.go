package params_test

import (
	"errors"
	"math/rand/v2"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/tracersim/internal/params"
	"github.com/san-kum/tracersim/internal/units"
)

func lawTable(optimizable []bool) *params.Table {
	tbl := params.NewTable()
	syms := []string{"1/d", "m", "mmol/m^3", "", "m/yr", "yr"}
	for i, opt := range optimizable {
		name := string(rune('a' + i))
		q := units.Q(float64(i+1), syms[i%len(syms)])
		Expect(tbl.Add(name, q, params.Optimizable(opt))).To(Succeed())
	}
	return tbl
}

func randomVec(r *rand.Rand, n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = r.NormFloat64() * 10
	}
	return v
}

var _ = Describe("a generated parameters type", func() {
	layouts := map[string][]bool{
		"all fixed":        {false, false, false},
		"all optimizable":  {true, true, true},
		"interleaved":      {true, false, true, false, true, false},
		"single optimizer": {false, true},
	}

	for name, layout := range layouts {
		Context(name, func() {
			var (
				s   *params.Schema
				p   *params.Params[float64]
				rng *rand.Rand
			)

			BeforeEach(func() {
				var err error
				s, err = params.Generate(lawTable(layout), "Law")
				Expect(err).NotTo(HaveOccurred())
				p = params.Default(s)
				rng = rand.New(rand.NewPCG(1, uint64(len(layout))))
			})

			It("round-trips any vector through Reconstruct", func() {
				for range 20 {
					v := randomVec(rng, p.Len())
					q, err := p.Reconstruct(v)
					Expect(err).NotTo(HaveOccurred())
					Expect(q.OptVec()).To(Equal(v))
				}
			})

			It("round-trips its own vector view", func() {
				q, err := p.Reconstruct(p.OptVec())
				Expect(err).NotTo(HaveOccurred())
				Expect(q.Equal(p)).To(BeTrue())
			})

			It("preserves fixed fields through reconstruction", func() {
				q, err := p.Reconstruct(randomVec(rng, p.Len()))
				Expect(err).NotTo(HaveOccurred())
				for _, f := range s.Fields() {
					if !f.Optimizable {
						Expect(q.MustField(f.Name)).To(Equal(p.MustField(f.Name)))
					}
				}
			})

			It("lifts addition and subtraction to the vector view", func() {
				p1, err := p.Reconstruct(randomVec(rng, p.Len()))
				Expect(err).NotTo(HaveOccurred())
				p2, err := p.Reconstruct(randomVec(rng, p.Len()))
				Expect(err).NotTo(HaveOccurred())
				for _, f := range s.Fields() {
					if !f.Optimizable {
						Expect(p2.SetField(f.Name, rng.Float64())).To(Succeed())
					}
				}

				sum, err := p1.Add(p2)
				Expect(err).NotTo(HaveOccurred())
				diff, err := p1.Sub(p2)
				Expect(err).NotTo(HaveOccurred())

				v1, v2 := p1.OptVec(), p2.OptVec()
				for k := range v1 {
					Expect(sum.OptVec()[k]).To(Equal(v1[k] + v2[k]))
					Expect(diff.OptVec()[k]).To(Equal(v1[k] - v2[k]))
				}
				for _, f := range s.Fields() {
					if !f.Optimizable {
						Expect(sum.MustField(f.Name)).To(Equal(p1.MustField(f.Name)))
						Expect(diff.MustField(f.Name)).To(Equal(p1.MustField(f.Name)))
					}
				}
			})

			It("scales only the vector view", func() {
				q := p.Scale(2.5)
				for _, f := range s.Fields() {
					want := p.MustField(f.Name)
					if f.Optimizable {
						want *= 2.5
					}
					Expect(q.MustField(f.Name)).To(Equal(want))
				}
				Expect(p.Neg().Neg().Equal(p)).To(BeTrue())
			})

			It("rejects positions outside the optimizable range", func() {
				_, err := p.Get(p.Len() + 1)
				var oob *params.IndexOutOfBoundsError
				Expect(errors.As(err, &oob)).To(BeTrue())
				_, err = p.Get(0)
				Expect(errors.As(err, &oob)).To(BeTrue())
			})

			It("agrees across element types", func() {
				d := params.Convert(p, params.Dual{})
				back := params.Convert(d, params.Float64{})
				Expect(back.Equal(p)).To(BeTrue())
				Expect(d.Len()).To(Equal(p.Len()))
			})
		})
	}
})

var _ = Describe("a parameter table", func() {
	It("leaves the table unchanged when a duplicate is added", func() {
		tbl := lawTable([]bool{true, false, true})
		before := tbl.Rows()
		err := tbl.Add("b", units.Q(9, "m"))
		var dup *params.DuplicateParameterError
		Expect(errors.As(err, &dup)).To(BeTrue())
		Expect(tbl.Names()).To(Equal([]string{"a", "b", "c"}))
		Expect(tbl.Rows()[1].Value).To(Equal(before[1].Value))
	})

	It("deletes exactly one row and keeps the order of the rest", func() {
		tbl := lawTable([]bool{false, false, false, false, false})
		Expect(tbl.Delete("c")).To(Succeed())
		Expect(tbl.Names()).To(Equal([]string{"a", "b", "d", "e"}))
		var unknown *params.UnknownParameterError
		Expect(errors.As(tbl.Delete("c"), &unknown)).To(BeTrue())
		Expect(tbl.Names()).To(Equal([]string{"a", "b", "d", "e"}))
	})
})
