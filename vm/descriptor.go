package vm

import "fmt"

// ---------------------------------------------------------------------------
// Method and field descriptors
// ---------------------------------------------------------------------------

// kindForDescriptor maps a field descriptor to its runtime kind.
func kindForDescriptor(descriptor string) (Kind, error) {
	if descriptor == "" {
		return 0, fmt.Errorf("empty field descriptor")
	}
	switch descriptor[0] {
	case 'B', 'C', 'S', 'Z', 'I':
		return KindInt, nil
	case 'J':
		return KindLong, nil
	case 'F':
		return KindFloat, nil
	case 'D':
		return KindDouble, nil
	case 'L', '[':
		return KindRef, nil
	}
	return 0, fmt.Errorf("bad field descriptor %q", descriptor)
}

// ZeroForDescriptor returns the default value for a field of the given
// descriptor: zero of the matching kind, or the null reference for
// objects and arrays.
func ZeroForDescriptor(descriptor string) Value {
	kind, err := kindForDescriptor(descriptor)
	if err != nil {
		kind = KindRef
	}
	return ZeroValue(kind)
}

// parseDescriptor splits a method descriptor like "(II)I" into its
// parameter kinds in declaration order, the return kind, and whether the
// method returns a value at all.
func parseDescriptor(descriptor string) (params []Kind, ret Kind, hasRet bool, err error) {
	if len(descriptor) < 3 || descriptor[0] != '(' {
		return nil, 0, false, fmt.Errorf("bad method descriptor %q", descriptor)
	}

	i := 1
	for i < len(descriptor) && descriptor[i] != ')' {
		start := i
		// Skip array dimensions to the element type.
		for i < len(descriptor) && descriptor[i] == '[' {
			i++
		}
		if i >= len(descriptor) {
			return nil, 0, false, fmt.Errorf("bad method descriptor %q", descriptor)
		}
		if descriptor[i] == 'L' {
			for i < len(descriptor) && descriptor[i] != ';' {
				i++
			}
			if i >= len(descriptor) {
				return nil, 0, false, fmt.Errorf("bad method descriptor %q", descriptor)
			}
		}
		i++

		// An array parameter is a reference regardless of element type.
		var kind Kind
		if descriptor[start] == '[' {
			kind = KindRef
		} else if kind, err = kindForDescriptor(descriptor[start:i]); err != nil {
			return nil, 0, false, fmt.Errorf("bad method descriptor %q", descriptor)
		}
		params = append(params, kind)
	}

	if i >= len(descriptor) || descriptor[i] != ')' || i+1 >= len(descriptor) {
		return nil, 0, false, fmt.Errorf("bad method descriptor %q", descriptor)
	}

	retDesc := descriptor[i+1:]
	if retDesc == "V" {
		return params, 0, false, nil
	}
	if retDesc[0] == '[' {
		return params, KindRef, true, nil
	}
	ret, err = kindForDescriptor(retDesc)
	if err != nil {
		return nil, 0, false, fmt.Errorf("bad method descriptor %q", descriptor)
	}
	return params, ret, true, nil
}

// slotCount returns how many local-variable slots a parameter list
// occupies: long and double take two, everything else one.
func slotCount(params []Kind) int {
	n := 0
	for _, k := range params {
		if k.Wide() {
			n += 2
		} else {
			n++
		}
	}
	return n
}
