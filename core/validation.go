// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"fmt"
)

func ValidatePage(page *Page) error {
	if page == nil {
		return fmt.Errorf("%w: page is nil", ErrInvalidPage)
	}

	if page.Id <= 0 {
		return fmt.Errorf("%w: %w", ErrInvalidPage, ErrInvalidID)
	}

	if page.Path == "" {
		return fmt.Errorf("%w: %w", ErrInvalidPage, ErrEmptyPath)
	}

	if err := ValidatePageType(page.Type); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPage, err)
	}

	return nil
}

func ValidateSection(section *PageSection) error {
	if section == nil {
		return fmt.Errorf("%w: section is nil", ErrInvalidSection)
	}

	if section.Id <= 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSection, ErrInvalidID)
	}

	if section.PageId <= 0 {
		return fmt.Errorf("%w: page_id: %w", ErrInvalidSection, ErrInvalidID)
	}

	return nil
}

func ValidatePageType(t PageType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: value %q", ErrInvalidPageType, t)
	}
	return nil
}
