package ecm_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ecmsim/ecm"
	"github.com/sarchlab/ecmsim/kernel"
	"github.com/sarchlab/ecmsim/machine"
)

const sandyBridgeDesc = `
name: SandyBridge-EP
clock: 2.7 GHz
cores: 8
cacheline: 64 B
memory bandwidth: 40 GB/s
cache stack:
  - level: 1
    size: 32 kB
    scope: per core
    cycles: 2
  - level: 2
    size: 256 kB
    scope: per core
    cycles: 2
  - level: 3
    size: 20 MB
    scope: per socket
`

const daxpyCode = `
double a[N];
double b[N];
double s;
for (int i = 0; i < N; i++)
    a[i] = a[i] + s * b[i];
`

const stencil2D5ptCode = `
double a[N][N];
double b[N][N];
double c;
for (int j = 1; j < N - 1; j++)
    for (int i = 1; i < N - 1; i++)
        b[j][i] = c * (a[j][i-1] + a[j][i+1] + a[j-1][i] + a[j+1][i]);
`

func processKernel(code string, constants map[string]int) *kernel.Model {
	k := kernel.New(code)
	for name, value := range constants {
		k.BindConstant(name, value)
	}

	model, err := k.Process()
	Expect(err).ToNot(HaveOccurred())

	return model
}

var _ = Describe("CacheSimulator", func() {
	var snb *machine.Model

	BeforeEach(func() {
		var err error
		snb, err = machine.Parse([]byte(sandyBridgeDesc))
		Expect(err).ToNot(HaveOccurred())
	})

	predict := func(code string, constants map[string]int) ecm.Result {
		sim := ecm.NewCacheSimulator(processKernel(code, constants), snb)

		result, err := sim.Calculate()
		Expect(err).ToNot(HaveOccurred())

		return result
	}

	Context("with the DAXPY kernel", func() {
		It("should predict the streaming costs", func() {
			result := predict(daxpyCode, map[string]int{"N": 50})

			Expect(result).To(HaveLen(3))
			Expect(result["L1-L2"]).To(Equal(6.0))
			Expect(result["L2-L3"]).To(Equal(6.0))
			Expect(result["L3-MEM"]).To(Equal(13.0))
		})

		It("should count one evicted line per level", func() {
			sim := ecm.NewCacheSimulator(
				processKernel(daxpyCode, map[string]int{"N": 50}), snb)

			_, err := sim.Calculate()
			Expect(err).ToNot(HaveOccurred())

			stats := sim.Stats()
			Expect(stats).To(HaveLen(3))
			for _, st := range stats {
				Expect(st.Evicts).To(Equal(8))
				Expect(st.LineEvicts).To(Equal(1))
			}

			// The first touched line of each stream misses, the rest of the
			// unrolled accesses hit the just-loaded line.
			Expect(stats[0].Misses).To(Equal(2))
			Expect(stats[0].Hits).To(Equal(15))
		})

		It("should produce identical results on repeated runs", func() {
			sim := ecm.NewCacheSimulator(
				processKernel(daxpyCode, map[string]int{"N": 50}), snb)

			first, err := sim.Calculate()
			Expect(err).ToNot(HaveOccurred())

			second, err := sim.Calculate()
			Expect(err).ToNot(HaveOccurred())

			Expect(second).To(Equal(first))
		})
	})

	Context("with the 2D 5-point stencil kernel", func() {
		It("should predict an L1-resident working set", func() {
			result := predict(stencil2D5ptCode, map[string]int{"N": 511})

			Expect(result["L1-L2"]).To(Equal(6.0))
			Expect(result["L2-L3"]).To(Equal(6.0))
			Expect(result["L3-MEM"]).To(Equal(13.0))
		})

		It("should detect the broken L1 layer condition", func() {
			result := predict(stencil2D5ptCode, map[string]int{"N": 4094})

			Expect(result["L1-L2"]).To(Equal(10.0))
			Expect(result["L2-L3"]).To(Equal(6.0))
			Expect(result["L3-MEM"]).To(Equal(13.0))
		})

		It("should detect the broken L2 layer condition", func() {
			result := predict(stencil2D5ptCode, map[string]int{"N": 327677})

			Expect(result["L1-L2"]).To(Equal(10.0))
			Expect(result["L2-L3"]).To(Equal(10.0))
			Expect(result["L3-MEM"]).To(Equal(13.0))
		})

		It("should detect the broken L3 layer condition", func() {
			result := predict(stencil2D5ptCode, map[string]int{"N": 327681})

			Expect(result["L1-L2"]).To(Equal(10.0))
			Expect(result["L2-L3"]).To(Equal(10.0))
			Expect(result["L3-MEM"]).To(Equal(21.6))
		})

		It("should settle on longer traces at larger levels", func() {
			sim := ecm.NewCacheSimulator(
				processKernel(stencil2D5ptCode, map[string]int{"N": 4094}), snb)

			_, err := sim.Calculate()
			Expect(err).ToNot(HaveOccurred())

			stats := sim.Stats()
			Expect(stats).To(HaveLen(3))
			Expect(stats[1].TraceLength).To(
				BeNumerically(">", stats[0].TraceLength))
			Expect(stats[2].TraceLength).To(
				BeNumerically(">", stats[1].TraceLength))
		})
	})

	Context("with degenerate kernels", func() {
		It("should predict zero traffic for scalar-only kernels", func() {
			code := `
double s;
double t;
for (int i = 0; i < N; i++)
    s = s + t;
`
			result := predict(code, map[string]int{"N": 100})

			Expect(result["L1-L2"]).To(Equal(0.0))
			Expect(result["L2-L3"]).To(Equal(0.0))
			Expect(result["L3-MEM"]).To(Equal(0.0))
		})

		It("should reject kernels mixing element types", func() {
			code := `
double a[N];
float b[N];
for (int i = 0; i < N; i++)
    a[i] = b[i];
`
			sim := ecm.NewCacheSimulator(
				processKernel(code, map[string]int{"N": 100}), snb)

			_, err := sim.Calculate()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("mixed element types"))
		})
	})

	Context("with single-precision kernels", func() {
		It("should size the traffic by the element type", func() {
			code := `
float a[N];
float b[N];
float s;
for (int i = 0; i < N; i++)
    a[i] = a[i] + s * b[i];
`
			sim := ecm.NewCacheSimulator(
				processKernel(code, map[string]int{"N": 50}), snb)

			_, err := sim.Calculate()
			Expect(err).ToNot(HaveOccurred())

			// 16 floats per 64 B line.
			Expect(sim.Stats()[0].Evicts).To(Equal(16))
			Expect(sim.Stats()[0].LineEvicts).To(Equal(1))
		})
	})
})

var _ = Describe("Compare", func() {
	It("should pass identical results silently", func() {
		got := ecm.Result{"L1-L2": 6.0, "L3-MEM": 13.0}
		want := map[string]float64{"L1-L2": 6.0, "L3-MEM": 13.0}

		Expect(ecm.Compare(got, want, 0.1)).To(BeEmpty())
	})

	It("should tolerate small deviations without marking them fatal", func() {
		got := ecm.Result{"L3-MEM": 21.6}
		want := map[string]float64{"L3-MEM": 22.0}

		deviations := ecm.Compare(got, want, 0.1)
		Expect(deviations).To(HaveLen(1))
		Expect(deviations[0].Fatal).To(BeFalse())
	})

	It("should mark large deviations fatal", func() {
		got := ecm.Result{"L1-L2": 10.0}
		want := map[string]float64{"L1-L2": 6.0}

		deviations := ecm.Compare(got, want, 0.1)
		Expect(deviations).To(HaveLen(1))
		Expect(deviations[0].Fatal).To(BeTrue())
		Expect(deviations[0].Metric).To(Equal("L1-L2"))
	})

	It("should ignore metrics without an expectation", func() {
		got := ecm.Result{"L1-L2": 6.0, "L2-L3": 99.0}
		want := map[string]float64{"L1-L2": 6.0}

		Expect(ecm.Compare(got, want, 0.1)).To(BeEmpty())
	})
})
