package ppu

import "sort"

// Sprite is a decoded OAM entry ready for compositing: X/Y are already
// resolved to screen-space (raw OAM X-8, Y-16), unlike the stored OAM bytes.
type Sprite struct {
	X, Y     int
	Tile     byte
	Attr     byte
	OAMIndex int
}

// scanOAM walks the 40 OAM entries and selects up to 10 sprites visible on
// the current scanline, honoring the current LCDC sprite-size bit.
func (p *PPU) scanOAM() {
	tall := (p.lcdc & 0x04) != 0
	height := 8
	if tall {
		height = 16
	}
	ly := int(p.ly)

	var found []Sprite
	for i := 0; i < 40 && len(found) < 10; i++ {
		base := i * 4
		rawY := p.oam[base+0]
		rawX := p.oam[base+1]
		tile := p.oam[base+2]
		attr := p.oam[base+3]
		y := int(rawY) - 16
		if ly < y || ly >= y+height {
			continue
		}
		found = append(found, Sprite{
			X: int(rawX) - 8, Y: y, Tile: tile, Attr: attr, OAMIndex: i,
		})
	}
	p.lineSprites[ly] = found
}

// renderLine rasterizes BG, window, and sprites for scanline y into the
// framebuffer, applying BGP/OBP0/OBP1 palette mapping to the four canonical
// DMG shades.
func (p *PPU) renderLine(y int) {
	lr := p.lineRegs[y]
	var bgci, winci [160]byte

	if (lr.LCDC & 0x01) != 0 {
		mapBase := uint16(0x9800)
		if (lr.LCDC & 0x08) != 0 {
			mapBase = 0x9C00
		}
		tileData8000 := (lr.LCDC & 0x10) != 0
		bgci = renderBGScanlineUsingFetcher(p, mapBase, tileData8000, lr.SCX, lr.SCY, byte(y))

		windowVisible := (lr.LCDC&0x20) != 0 && int(lr.WY) <= y && lr.WX <= 166
		if windowVisible {
			winMapBase := uint16(0x9800)
			if (lr.LCDC & 0x40) != 0 {
				winMapBase = 0x9C00
			}
			winXStart := int(lr.WX) - 7
			fineY := lr.WinLine & 7
			mapRow := uint16(lr.WinLine) >> 3
			base := winMapBase + mapRow*32
			winci = RenderWindowScanlineUsingFetcher(p, base, tileData8000, winXStart, fineY)
			for x := winXStart; x >= 0 && x < 160; x++ {
				bgci[x] = winci[x]
			}
		}
	}

	var spriteci, spritepal [160]byte
	if (lr.LCDC & 0x02) != 0 {
		tall := (lr.LCDC & 0x04) != 0
		spriteci, spritepal = ComposeSpriteLineExt(p, p.lineSprites[y], byte(y), bgci, tall)
	}

	for x := 0; x < 160; x++ {
		var shadeIdx byte
		if spriteci[x] != 0 {
			pal := lr.OBP0
			if spritepal[x] == 1 {
				pal = lr.OBP1
			}
			shadeIdx = paletteShade(pal, spriteci[x])
		} else {
			shadeIdx = paletteShade(lr.BGP, bgci[x])
		}
		r, g, b, a := shade(shadeIdx)
		off := (y*160 + x) * 4
		p.framebuffer[off+0] = r
		p.framebuffer[off+1] = g
		p.framebuffer[off+2] = b
		p.framebuffer[off+3] = a
	}
}

// paletteShade maps a 2-bit color index through a palette register (BGP,
// OBP0, OBP1) to a 2-bit shade index.
func paletteShade(pal byte, ci byte) byte {
	return (pal >> (ci * 2)) & 0x03
}

// shade converts a DMG 2-bit shade index (0=lightest) to opaque RGBA.
func shade(idx byte) (r, g, b, a byte) {
	switch idx & 0x03 {
	case 0:
		return 0xE0, 0xF8, 0xD0, 0xFF
	case 1:
		return 0x88, 0xC0, 0x70, 0xFF
	case 2:
		return 0x34, 0x68, 0x56, 0xFF
	default:
		return 0x08, 0x18, 0x20, 0xFF
	}
}

// ComposeSpriteLine composites sprites over a background color-index line,
// returning the resulting 160-pixel color-index line (0 = transparent,
// background shows through). Sprites are drawn in ascending X order, tied
// sprites broken by ascending OAM index; the first sprite to paint a given
// pixel wins, matching hardware's fixed scan-to-FIFO priority order.
func ComposeSpriteLine(mem VRAMReader, sprites []Sprite, ly byte, bgci [160]byte, tall bool) [160]byte {
	ci, _ := ComposeSpriteLineExt(mem, sprites, ly, bgci, tall)
	return ci
}

// ComposeSpriteLineExt is ComposeSpriteLine plus a parallel palette-select
// line (0 = OBP0, 1 = OBP1) for the winning sprite at each pixel.
func ComposeSpriteLineExt(mem VRAMReader, sprites []Sprite, ly byte, bgci [160]byte, tall bool) (ci, pal [160]byte) {
	ordered := make([]Sprite, len(sprites))
	copy(ordered, sprites)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].X != ordered[j].X {
			return ordered[i].X < ordered[j].X
		}
		return ordered[i].OAMIndex < ordered[j].OAMIndex
	})

	var painted [160]bool

	for _, s := range ordered {
		row := int(ly) - s.Y
		if row < 0 {
			continue
		}
		yflip := (s.Attr & 0x40) != 0
		xflip := (s.Attr & 0x20) != 0
		bgPriority := (s.Attr & 0x80) != 0
		useOBP1 := (s.Attr & 0x10) != 0

		tile := s.Tile
		height := 8
		if tall {
			height = 16
			tile &^= 0x01
		}
		if row >= height {
			continue
		}
		tileRow := row
		if yflip {
			tileRow = height - 1 - row
		}
		effTile := uint16(tile)
		if tall && tileRow >= 8 {
			effTile++
			tileRow -= 8
		}

		base := 0x8000 + effTile*16 + uint16(tileRow)*2
		lo := mem.Read(base)
		hi := mem.Read(base + 1)

		for col := 0; col < 8; col++ {
			x := s.X + col
			if x < 0 || x >= 160 {
				continue
			}
			if painted[x] {
				continue
			}
			bit := col
			if !xflip {
				bit = 7 - col
			}
			pixCi := ((hi>>uint(bit))&1)<<1 | ((lo >> uint(bit)) & 1)
			if pixCi == 0 {
				continue
			}
			if bgPriority && bgci[x] != 0 {
				painted[x] = true
				continue
			}
			ci[x] = pixCi
			if useOBP1 {
				pal[x] = 1
			}
			painted[x] = true
		}
	}
	return ci, pal
}
