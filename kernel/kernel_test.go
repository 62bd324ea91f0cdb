package kernel_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/ecmsim/kernel"
)

const daxpyCode = `
double a[N], b[N];
double s;

for(i=0; i<N; ++i)
    a[i] = a[i] + s * b[i];
`

const stencil2D5ptCode = `
double a[N][N];
double b[N][N];
double s;

for(j=1; j<N-1; ++j)
    for(i=1; i<N-1; ++i)
        b[j][i] = ( a[j][i-1] + a[j][i+1]
                  + a[j-1][i] + a[j+1][i]) * s;
`

const matsqCode = `
double S[N][N];
double D[N][N];

for(i=0; i<N; i++) {
    for(j=0; j<N; j++) {
        for(k=0; k<N; k++) {
            D[i][j] = D[i][j] + S[i][k]*S[k][j];
        }
    }
}
`

func rel(index string, delta int) kernel.AccessOffset {
	return kernel.AccessOffset{Kind: kernel.Relative, Index: index, Delta: delta}
}

var _ = Describe("Kernel", func() {
	Context("processing DAXPY", func() {
		var model *kernel.Model

		BeforeEach(func() {
			k := kernel.New(daxpyCode)
			k.BindConstant("N", 50)

			var err error
			model, err = k.Process()
			Expect(err).ToNot(HaveOccurred())
		})

		It("should extract the loop stack", func() {
			Expect(model.LoopStack).To(Equal([]kernel.LoopDim{
				{Index: "i", Start: 0, Bound: 50, Step: 1},
			}))
			Expect(model.LoopOrder()).To(Equal("i"))
			Expect(model.InnermostIndex()).To(Equal("i"))
		})

		It("should extract variables", func() {
			Expect(model.Variables).To(HaveLen(3))
			Expect(model.Variables["a"]).To(Equal(kernel.Variable{
				Name: "a", Type: kernel.Float64, Shape: []int{50},
			}))
			Expect(model.Variables["s"].IsScalar()).To(BeTrue())
		})

		It("should record every access occurrence", func() {
			Expect(model.Destinations["a"]).To(Equal(
				[]kernel.Access{{rel("i", 0)}}))
			Expect(model.Sources["a"]).To(Equal(
				[]kernel.Access{{rel("i", 0)}}))
			Expect(model.Sources["b"]).To(Equal(
				[]kernel.Access{{rel("i", 0)}}))
			Expect(model.Sources["s"]).To(Equal(
				[]kernel.Access{{{Kind: kernel.Direct}}}))
		})
	})

	Context("processing a 2D 5-point stencil", func() {
		var model *kernel.Model

		BeforeEach(func() {
			k := kernel.New(stencil2D5ptCode)
			k.BindConstant("N", 511)

			var err error
			model, err = k.Process()
			Expect(err).ToNot(HaveOccurred())
		})

		It("should extract the nested loop stack outermost first", func() {
			Expect(model.LoopStack).To(Equal([]kernel.LoopDim{
				{Index: "j", Start: 1, Bound: 510, Step: 1},
				{Index: "i", Start: 1, Bound: 510, Step: 1},
			}))
		})

		It("should order offsets outermost dimension first", func() {
			Expect(model.Sources["a"]).To(Equal([]kernel.Access{
				{rel("j", 0), rel("i", -1)},
				{rel("j", 0), rel("i", 1)},
				{rel("j", -1), rel("i", 0)},
				{rel("j", 1), rel("i", 0)},
			}))
			Expect(model.Destinations["b"]).To(Equal([]kernel.Access{
				{rel("j", 0), rel("i", 0)},
			}))
		})

		It("should compute strides from the shape", func() {
			Expect(model.Stride("a", 0)).To(Equal(511))
			Expect(model.Stride("a", 1)).To(Equal(1))
		})
	})

	Context("processing a matrix product", func() {
		It("should walk a three-deep nest with braced bodies", func() {
			k := kernel.New(matsqCode)
			k.BindConstant("N", 1000)

			model, err := k.Process()
			Expect(err).ToNot(HaveOccurred())

			Expect(model.LoopOrder()).To(Equal("ijk"))
			Expect(model.Sources["S"]).To(Equal([]kernel.Access{
				{rel("i", 0), rel("k", 0)},
				{rel("k", 0), rel("j", 0)},
			}))
			Expect(model.Destinations["D"]).To(Equal([]kernel.Access{
				{rel("i", 0), rel("j", 0)},
			}))
		})
	})

	Context("declarations", func() {
		It("should resolve dimension products of constants", func() {
			k := kernel.New(`
				double a[N*N];
				for(i=0; i<N; ++i)
					a[i] = 1.0;
			`)
			k.BindConstant("N", 50)

			model, err := k.Process()
			Expect(err).ToNot(HaveOccurred())
			Expect(model.Variables["a"].Shape).To(Equal([]int{2500}))
		})

		It("should reject non-float types", func() {
			k := kernel.New(`
				int a[N];
				for(i=0; i<N; ++i)
					a[i] = 1.0;
			`)
			k.BindConstant("N", 50)

			_, err := k.Process()
			var target *kernel.UnsupportedTypeError
			Expect(errors.As(err, &target)).To(BeTrue())
			Expect(target.Type).To(Equal("int"))
		})

		It("should reject non-product shapes", func() {
			k := kernel.New(`
				double a[N+1];
				for(i=0; i<N; ++i)
					a[i] = 1.0;
			`)
			k.BindConstant("N", 50)

			_, err := k.Process()
			var target *kernel.MalformedShapeError
			Expect(errors.As(err, &target)).To(BeTrue())
		})

		It("should report unbound constants in shapes", func() {
			k := kernel.New(`
				double a[M];
				for(i=0; i<10; ++i)
					a[i] = 1.0;
			`)

			_, err := k.Process()
			var target *kernel.MissingConstantError
			Expect(errors.As(err, &target)).To(BeTrue())
			Expect(target.Name).To(Equal("M"))
		})

		It("should accept programmatic declarations", func() {
			k := kernel.New(`
				for(i=0; i<50; ++i)
					a[i] = b[i];
			`)
			Expect(k.Declare("a", kernel.Float64, []int{50})).To(Succeed())
			Expect(k.Declare("b", kernel.Float64, []int{50})).To(Succeed())

			model, err := k.Process()
			Expect(err).ToNot(HaveOccurred())
			Expect(model.Variables).To(HaveLen(2))
		})

		It("should reject programmatic declarations of unsupported types", func() {
			k := kernel.New("")
			err := k.Declare("a", kernel.ElemType("long"), nil)

			var target *kernel.UnsupportedTypeError
			Expect(errors.As(err, &target)).To(BeTrue())
		})
	})

	Context("loop headers", func() {
		It("should accept += steps and bound constants with offsets", func() {
			k := kernel.New(`
				double a[N];
				for(i=2; i<N-2; i+=2)
					a[i] = 1.0;
			`)
			k.BindConstant("N", 100)

			model, err := k.Process()
			Expect(err).ToNot(HaveOccurred())
			Expect(model.LoopStack).To(Equal([]kernel.LoopDim{
				{Index: "i", Start: 2, Bound: 98, Step: 2},
			}))
		})

		It("should accept inline counter declarations", func() {
			k := kernel.New(`
				double a[N];
				for (int i = 0; i < N; i++)
					a[i] = 1.0;
			`)
			k.BindConstant("N", 50)

			model, err := k.Process()
			Expect(err).ToNot(HaveOccurred())
			Expect(model.LoopStack).To(Equal([]kernel.LoopDim{
				{Index: "i", Start: 0, Bound: 50, Step: 1},
			}))
		})

		It("should reject condition operators other than <", func() {
			k := kernel.New(`
				double a[N];
				for(i=0; i<=N; ++i)
					a[i] = 1.0;
			`)
			k.BindConstant("N", 50)

			_, err := k.Process()
			var target *kernel.UnsupportedConstructError
			Expect(errors.As(err, &target)).To(BeTrue())
			Expect(target.Construct).To(ContainSubstring("only < is supported"))
		})

		It("should reject decrement steps", func() {
			k := kernel.New(`
				double a[N];
				for(i=0; i<N; --i)
					a[i] = 1.0;
			`)
			k.BindConstant("N", 50)

			_, err := k.Process()
			var target *kernel.UnsupportedConstructError
			Expect(errors.As(err, &target)).To(BeTrue())
		})

		It("should reject loops over different counters", func() {
			k := kernel.New(`
				double a[N];
				for(i=0; i<N; ++j)
					a[i] = 1.0;
			`)
			k.BindConstant("N", 50)

			_, err := k.Process()
			var target *kernel.UnsupportedConstructError
			Expect(errors.As(err, &target)).To(BeTrue())
			Expect(target.Construct).To(
				ContainSubstring("same counter variable"))
		})

		It("should report undefined bound constants before any extraction", func() {
			k := kernel.New(`
				double a[N];
				for(i=0; i<M; ++i)
					a[i] = 1.0;
			`)
			k.BindConstant("N", 50)

			_, err := k.Process()
			var target *kernel.MissingConstantError
			Expect(errors.As(err, &target)).To(BeTrue())
			Expect(target.Name).To(Equal("M"))
		})
	})

	Context("structure violations", func() {
		It("should reject statements after the loop", func() {
			k := kernel.New(`
				double a[N];
				for(i=0; i<N; ++i)
					a[i] = 1.0;
				double b[N];
			`)
			k.BindConstant("N", 50)

			_, err := k.Process()
			var target *kernel.UnsupportedConstructError
			Expect(errors.As(err, &target)).To(BeTrue())
		})

		It("should reject imperfect nests", func() {
			k := kernel.New(`
				double a[N][N];
				for(j=0; j<N; ++j) {
					a[j][0] = 0.0;
					for(i=0; i<N; ++i)
						a[j][i] = 1.0;
				}
			`)
			k.BindConstant("N", 50)

			_, err := k.Process()
			var target *kernel.UnsupportedConstructError
			Expect(errors.As(err, &target)).To(BeTrue())
		})

		It("should reject compound assignment in loop bodies", func() {
			k := kernel.New(`
				double a[N];
				for(i=0; i<N; ++i)
					a[i] += 1.0;
			`)
			k.BindConstant("N", 50)

			_, err := k.Process()
			var target *kernel.UnsupportedConstructError
			Expect(errors.As(err, &target)).To(BeTrue())
		})

		It("should reject kernels without a loop", func() {
			k := kernel.New(`double a[N];`)
			k.BindConstant("N", 50)

			_, err := k.Process()
			var target *kernel.UnsupportedConstructError
			Expect(errors.As(err, &target)).To(BeTrue())
		})
	})

	Context("subscripts", func() {
		It("should reject non-affine subscripts and keep no partial model", func() {
			k := kernel.New(`
				double a[N];
				for(i=0; i<N; ++i)
					a[i*i] = 1.0;
			`)
			k.BindConstant("N", 50)

			model, err := k.Process()
			Expect(model).To(BeNil())

			var target *kernel.UnsupportedSubscriptError
			Expect(errors.As(err, &target)).To(BeTrue())
			Expect(target.Subscript).To(Equal("i*i"))
		})

		It("should reject subscript variables that are not loop indices", func() {
			k := kernel.New(`
				double a[N];
				for(i=0; i<N; ++i)
					a[m] = 1.0;
			`)
			k.BindConstant("N", 50)

			_, err := k.Process()
			var target *kernel.UndeclaredIndexError
			Expect(errors.As(err, &target)).To(BeTrue())
			Expect(target.Index).To(Equal("m"))
		})

		It("should reject more subscripts than declared dimensions", func() {
			k := kernel.New(`
				double a[N];
				double b[N];
				for(i=0; i<N; ++i)
					b[i] = a[i][i];
			`)
			k.BindConstant("N", 50)

			model, err := k.Process()
			Expect(model).To(BeNil())

			var target *kernel.MalformedShapeError
			Expect(errors.As(err, &target)).To(BeTrue())
			Expect(target.Var).To(Equal("a"))
			Expect(target.Error()).To(ContainSubstring("2 subscripts"))
		})

		It("should accept absolute constant subscripts", func() {
			k := kernel.New(`
				double a[N][N];
				for(i=0; i<N; ++i)
					a[4][i] = 1.0;
			`)
			k.BindConstant("N", 50)

			model, err := k.Process()
			Expect(err).ToNot(HaveOccurred())
			Expect(model.Destinations["a"]).To(Equal([]kernel.Access{
				{{Kind: kernel.Absolute, Delta: 4}, rel("i", 0)},
			}))
		})
	})

	Context("access helpers", func() {
		It("should report index usage", func() {
			a := kernel.Access{rel("j", 1), rel("i", -1)}
			Expect(a.UsesIndex("i")).To(BeTrue())
			Expect(a.UsesIndex("k")).To(BeFalse())

			direct := kernel.Access{{Kind: kernel.Direct}}
			Expect(direct.UsesIndex("i")).To(BeFalse())
		})

		It("should be deterministic across repeated processing", func() {
			process := func() *kernel.Model {
				k := kernel.New(stencil2D5ptCode)
				k.BindConstant("N", 511)
				m, err := k.Process()
				Expect(err).ToNot(HaveOccurred())
				return m
			}

			Expect(process()).To(Equal(process()))
		})
	})
})
