package raster

import "image"

// clampIndex 越界坐标取最近的有效像素（复制边界）
func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// ConvolveGrid 可分离卷积：先水平后垂直，边界复制，结果截断到 [0,1]
func ConvolveGrid(g *Grid, kernel []float64) *Grid {
	if len(kernel) <= 1 {
		return g.Clone()
	}
	r := len(kernel) / 2
	w, h := g.Width, g.Height

	tmp := NewGrid(w, h)
	for y := 0; y < h; y++ {
		row := g.Pix[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			var sum float64
			for i, kv := range kernel {
				sum += row[clampIndex(x+i-r, w)] * kv
			}
			tmp.Pix[y*w+x] = sum
		}
	}

	out := NewGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float64
			for i, kv := range kernel {
				sum += tmp.Pix[clampIndex(y+i-r, h)*w+x] * kv
			}
			out.Pix[y*w+x] = Clamp01(sum)
		}
	}
	return out
}

// ConvolveNRGBA 对 RGB 三个通道做同样的可分离卷积，alpha 固定为 255
// 输入需是原点为 (0,0) 的帧
func ConvolveNRGBA(img *image.NRGBA, kernel []float64) *image.NRGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	if len(kernel) <= 1 {
		copyRows(out, img)
		return out
	}
	r := len(kernel) / 2

	// 中间结果保留浮点，避免两次取整
	tmp := make([]float64, w*h*3)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			var sr, sg, sb float64
			for i, kv := range kernel {
				p := clampIndex(x+i-r, w) * 4
				sr += float64(row[p]) * kv
				sg += float64(row[p+1]) * kv
				sb += float64(row[p+2]) * kv
			}
			t := (y*w + x) * 3
			tmp[t], tmp[t+1], tmp[t+2] = sr, sg, sb
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sr, sg, sb float64
			for i, kv := range kernel {
				t := (clampIndex(y+i-r, h)*w + x) * 3
				sr += tmp[t] * kv
				sg += tmp[t+1] * kv
				sb += tmp[t+2] * kv
			}
			o := y*out.Stride + x*4
			out.Pix[o] = ToByte(sr)
			out.Pix[o+1] = ToByte(sg)
			out.Pix[o+2] = ToByte(sb)
			out.Pix[o+3] = 255
		}
	}
	return out
}

func copyRows(dst, src *image.NRGBA) {
	n := src.Rect.Dx() * 4
	for y := 0; y < src.Rect.Dy(); y++ {
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+n], src.Pix[y*src.Stride:y*src.Stride+n])
	}
}
